package crossref

import "testing"

func TestParseActionURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Ref
	}{
		{
			name: "project and incident",
			url:  "/projects/42/incidents/7",
			want: Ref{ProjectID: "42", EntityID: "7", EntityType: "INCIDENT"},
		},
		{
			name: "absolute url with spanish segments",
			url:  "https://obra.example.com/proyectos/abc-1/maquinaria/9",
			want: Ref{ProjectID: "abc-1", EntityID: "9", EntityType: "MACHINERY"},
		},
		{
			name: "hash routed",
			url:  "https://obra.example.com/#/projects/3",
			want: Ref{ProjectID: "3"},
		},
		{
			name: "entity without project",
			url:  "/materials/15",
			want: Ref{EntityID: "15", EntityType: "MATERIAL"},
		},
		{
			name: "no references",
			url:  "/dashboard",
			want: Ref{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseActionURL(tt.url)
			if got != tt.want {
				t.Errorf("ParseActionURL(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}
