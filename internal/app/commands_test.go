package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nhle/obranotify/internal/api"
	"github.com/nhle/obranotify/internal/credential"
	"github.com/nhle/obranotify/internal/notification"
	"github.com/nhle/obranotify/internal/preference"
	"github.com/nhle/obranotify/internal/sync"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  paletteCommand
		ok    bool
	}{
		{"actualizar", paletteCommand{name: "refresh"}, true},
		{"  Rol Supervisor ", paletteCommand{name: "role", arg: "supervisor"}, true},
		{"sonido off", paletteCommand{name: "sound", arg: "off"}, true},
		{"volumen 0.25", paletteCommand{name: "volume", arg: "0.25"}, true},
		{"leer-todo", paletteCommand{name: "read-all"}, true},
		{"reconectar", paletteCommand{name: "reconnect"}, true},
		{"borrar todo", paletteCommand{}, false},
		{"", paletteCommand{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseCommand(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorLabel(t *testing.T) {
	opErr := &notification.OpError{Op: "delete", Label: notification.LabelDelete, Err: errors.New("boom")}
	assert.Equal(t, notification.LabelDelete, errorLabel(fmt.Errorf("wrapped: %w", opErr)))

	prefErr := &preference.OpError{Op: "update", Label: preference.LabelUpdate, Err: errors.New("boom")}
	assert.Equal(t, preference.LabelUpdate, errorLabel(prefErr))

	assert.Contains(t, errorLabel(sync.ErrRateLimited), "Espere")
	assert.Equal(t, "plain", errorLabel(errors.New("plain")))
}

func TestReconnectLabel(t *testing.T) {
	assert.Contains(t, reconnectLabel(fmt.Errorf("%w: expired", credential.ErrNoSession)), "login")
	assert.Contains(t, reconnectLabel(&api.AuthError{Message: "token rejected"}), "login")
	assert.Contains(t, reconnectLabel(errors.New("connecting to hub: refused")), "(r)")
}
