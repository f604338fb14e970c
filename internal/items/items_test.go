package items

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "essential", want: LevelEssential},
		{in: "full", want: LevelFull},
		{in: " FULL ", want: LevelFull},
		{in: "optional", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLevelIncludes(t *testing.T) {
	assert.True(t, LevelEssential.Includes(LevelEssential))
	assert.False(t, LevelEssential.Includes(LevelFull))
	assert.True(t, LevelFull.Includes(LevelEssential))
	assert.True(t, LevelFull.Includes(LevelFull))
	assert.False(t, Level("bogus").Includes(LevelEssential))
	assert.False(t, LevelFull.Includes(Level("bogus")))
}

func TestResolve_MonotonicInclusion(t *testing.T) {
	essential := Default.Resolve(LevelEssential)
	full := Default.Resolve(LevelFull)

	require.NotEmpty(t, essential)
	require.Greater(t, len(full), len(essential), "full must be a strict superset")

	inFull := make(map[string]bool, len(full))
	for _, it := range full {
		inFull[it.Name] = true
	}
	for _, it := range essential {
		assert.True(t, inFull[it.Name], "essential item %q missing from full", it.Name)
	}
}

func TestResolve_DeclarationOrder(t *testing.T) {
	catalog := Catalog{
		{Name: "b", ArchivePath: "b", RequiredLevel: LevelFull, Kind: KindFile},
		{Name: "a", ArchivePath: "a", RequiredLevel: LevelEssential, Kind: KindFile},
		{Name: "c", ArchivePath: "c", RequiredLevel: LevelEssential, Kind: KindDir},
	}

	var names []string
	for _, it := range catalog.Resolve(LevelFull) {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)

	names = nil
	for _, it := range catalog.Resolve(LevelEssential) {
		names = append(names, it.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestBind(t *testing.T) {
	catalog := Catalog{
		{Name: "rel", SourcePath: ".claude/todos", ArchivePath: "todos", RequiredLevel: LevelEssential, Kind: KindDir},
		{Name: "abs", SourcePath: "/etc/claude.json", ArchivePath: "etc/claude.json", RequiredLevel: LevelEssential, Kind: KindFile},
	}

	bound := catalog.Bind("/home/alice")
	assert.Equal(t, filepath.Join("/home/alice", ".claude", "todos"), bound[0].SourcePath)
	assert.Equal(t, "/etc/claude.json", bound[1].SourcePath)
	assert.Equal(t, ".claude/todos", catalog[0].SourcePath, "Bind must not modify the receiver")
}

func TestArchiveDest(t *testing.T) {
	it := Item{ArchivePath: "claude/projects"}
	assert.Equal(t, filepath.Join("/wc", "claude", "projects"), it.ArchiveDest("/wc"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Default.Validate())

	tests := []struct {
		name    string
		catalog Catalog
	}{
		{
			name:    "missing name",
			catalog: Catalog{{ArchivePath: "a", RequiredLevel: LevelFull, Kind: KindFile}},
		},
		{
			name: "duplicate name",
			catalog: Catalog{
				{Name: "a", ArchivePath: "a", RequiredLevel: LevelFull, Kind: KindFile},
				{Name: "a", ArchivePath: "b", RequiredLevel: LevelFull, Kind: KindFile},
			},
		},
		{
			name:    "bad level",
			catalog: Catalog{{Name: "a", ArchivePath: "a", RequiredLevel: "optional", Kind: KindFile}},
		},
		{
			name:    "bad kind",
			catalog: Catalog{{Name: "a", ArchivePath: "a", RequiredLevel: LevelFull, Kind: "link"}},
		},
		{
			name:    "absolute archive path",
			catalog: Catalog{{Name: "a", ArchivePath: "/a", RequiredLevel: LevelFull, Kind: KindFile}},
		},
		{
			name:    "escaping archive path",
			catalog: Catalog{{Name: "a", ArchivePath: "../a", RequiredLevel: LevelFull, Kind: KindFile}},
		},
		{
			name:    "reserved prefix",
			catalog: Catalog{{Name: "a", ArchivePath: "machines/a", RequiredLevel: LevelFull, Kind: KindFile}},
		},
		{
			name:    "git dir",
			catalog: Catalog{{Name: "a", ArchivePath: ".git/config", RequiredLevel: LevelFull, Kind: KindFile}},
		},
		{
			name: "nested archive paths",
			catalog: Catalog{
				{Name: "a", ArchivePath: "claude", RequiredLevel: LevelFull, Kind: KindDir},
				{Name: "b", ArchivePath: "claude/x.json", RequiredLevel: LevelFull, Kind: KindFile},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.catalog.Validate())
		})
	}
}
