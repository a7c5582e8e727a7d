package yaml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefinitionValidate(t *testing.T) {
	valid := func() *StoreDefinition {
		return &StoreDefinition{
			Name: "app",
			Atoms: []AtomDefinition{
				{Name: "counter"},
			},
			Filters: []FilterDefinition{
				{Name: "label", Kind: "expr"},
			},
			Scopes: []ScopeDefinition{
				{Name: "session", Atoms: []AtomDefinition{{Name: "user"}}},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*StoreDefinition)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*StoreDefinition) {},
		},
		{
			name:    "missing store name",
			mutate:  func(sd *StoreDefinition) { sd.Name = "" },
			wantErr: "store name is required",
		},
		{
			name:    "missing atom name",
			mutate:  func(sd *StoreDefinition) { sd.Atoms[0].Name = "" },
			wantErr: "atom name is required",
		},
		{
			name:    "missing filter kind",
			mutate:  func(sd *StoreDefinition) { sd.Filters[0].Kind = "" },
			wantErr: "filter label: kind is required",
		},
		{
			name:    "atom and filter share a name",
			mutate:  func(sd *StoreDefinition) { sd.Filters[0].Name = "counter" },
			wantErr: "duplicate entry name counter",
		},
		{
			name: "duplicate scope name",
			mutate: func(sd *StoreDefinition) {
				sd.Scopes = append(sd.Scopes, ScopeDefinition{Name: "session"})
			},
			wantErr: "duplicate scope name session",
		},
		{
			name: "action without kind",
			mutate: func(sd *StoreDefinition) {
				sd.Atoms[0].Actions = []ActionDefinition{{Name: "add"}}
			},
			wantErr: "action add: kind is required",
		},
		{
			name: "nested error names the scope",
			mutate: func(sd *StoreDefinition) {
				sd.Scopes[0].Atoms[0].Name = ""
			},
			wantErr: "scope session: atom name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid()
			tt.mutate(def)
			err := def.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
