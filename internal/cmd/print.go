package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nhle/obranotify/internal/model"
	"github.com/nhle/obranotify/internal/notification"
)

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printNotifications(w io.Writer, items []model.Notification, now time.Time) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "No hay notificaciones")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\t\tCONTEXTO\tPRIORIDAD\tTÍTULO\tRECIBIDA")
	for _, n := range items {
		mark := "●"
		if n.IsRead {
			mark = "○"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, mark, n.Context.Label(), n.Priority.Label(), n.Title, n.TimeAgo(now))
	}
	return tw.Flush()
}

func printSummary(w io.Writer, s model.Summary) error {
	fmt.Fprintf(w, "No leídas: %d\n", s.UnreadCount)
	if s.HasCritical() {
		fmt.Fprintln(w, "Hay notificaciones críticas sin leer")
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(s.ByContext) > 0 {
		fmt.Fprintln(tw, "\nPor contexto")
		for _, c := range model.KnownContexts {
			if n := s.ByContext[c]; n > 0 {
				fmt.Fprintf(tw, "  %s\t%d\n", c.Label(), n)
			}
		}
	}
	if len(s.ByPriority) > 0 {
		fmt.Fprintln(tw, "\nPor prioridad")
		for _, p := range []model.Priority{model.PriorityCritical, model.PriorityHigh, model.PriorityNormal, model.PriorityLow} {
			if n := s.ByPriority[p]; n > 0 {
				fmt.Fprintf(tw, "  %s\t%d\n", p.Label(), n)
			}
		}
	}
	if len(s.Recent) > 0 {
		fmt.Fprintln(tw, "\nRecientes")
		for _, n := range s.Recent {
			fmt.Fprintf(tw, "  %s\t%s\n", n.Priority.Label(), n.Title)
		}
	}
	return tw.Flush()
}

func printStats(w io.Writer, st *notification.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total\t%d\n", st.Total)
	fmt.Fprintf(tw, "No leídas\t%d\n", st.Unread)
	fmt.Fprintf(tw, "Leídas\t%d\n", st.Read)

	if len(st.ByType) > 0 {
		fmt.Fprintln(tw, "\nPor tipo")
		types := make([]string, 0, len(st.ByType))
		for t := range st.ByType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(tw, "  %s\t%d\n", t, st.ByType[t])
		}
	}
	return tw.Flush()
}

func printPreferences(w io.Writer, prefs []model.Preference) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTEXTO\tAPP\tCORREO\tMÍNIMA")
	for _, p := range prefs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Context.Label(), onOff(p.InAppEnabled), onOff(p.EmailEnabled), p.MinimumPriority.Label())
	}
	return tw.Flush()
}

func onOff(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

// parseContext accepts a context name in any case.
func parseContext(s string) (model.Context, error) {
	c := model.Context(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Known() {
		return "", fmt.Errorf("unknown context %q", s)
	}
	return c, nil
}
