package compaction

import (
	"testing"

	"github.com/kvforge/rockyardkv/internal/manifest"
	"github.com/kvforge/rockyardkv/internal/version"
)

func buildVersionWithL0Files(t *testing.T, n int) (*version.VersionSet, *version.Version) {
	t.Helper()
	vset := version.NewVersionSet(version.VersionSetOptions{})
	v := version.NewVersion(vset, 1)

	edit := manifest.NewVersionEdit()
	for i := range n {
		meta := makeTestFileMetaData(uint64(i+1), 1000, []byte("a"), []byte("z"))
		edit.AddFile(0, meta)
	}

	builder := version.NewBuilder(vset, v)
	if err := builder.Apply(edit); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	return vset, builder.SaveTo(vset)
}

func TestSizeTieredCompactionPickerNeedsCompactionEmpty(t *testing.T) {
	picker := DefaultSizeTieredCompactionPicker()
	v := version.NewVersion(nil, 1)

	if picker.NeedsCompaction(v) {
		t.Error("Empty version should not need compaction")
	}
}

func TestSizeTieredCompactionPickerBelowTrigger(t *testing.T) {
	picker := DefaultSizeTieredCompactionPicker()
	picker.Trigger = 4

	_, v := buildVersionWithL0Files(t, 3)

	if picker.NeedsCompaction(v) {
		t.Error("3 L0 files should not trigger compaction (trigger=4)")
	}
	if picker.PickCompaction(v) != nil {
		t.Error("PickCompaction should return nil below the trigger")
	}
}

func TestSizeTieredCompactionPickerAtTrigger(t *testing.T) {
	picker := DefaultSizeTieredCompactionPicker()
	picker.Trigger = 4

	_, v := buildVersionWithL0Files(t, 4)

	if !picker.NeedsCompaction(v) {
		t.Error("4 L0 files should trigger compaction (trigger=4)")
	}

	c := picker.PickCompaction(v)
	if c == nil {
		t.Fatal("PickCompaction should return a compaction at the trigger")
	}
	if c.OutputLevel != 1 {
		t.Errorf("OutputLevel = %d, want 1", c.OutputLevel)
	}
	if len(c.Inputs) == 0 || c.Inputs[0].Level != 0 {
		t.Error("first input group should be level 0")
	}
	if len(c.Inputs[0].Files) != 4 {
		t.Errorf("L0 input file count = %d, want 4", len(c.Inputs[0].Files))
	}
}

func TestSizeTieredCompactionPickerSkipsFilesBeingCompacted(t *testing.T) {
	picker := DefaultSizeTieredCompactionPicker()
	picker.Trigger = 2

	_, v := buildVersionWithL0Files(t, 2)
	v.Files(0)[0].BeingCompacted = true

	c := picker.PickCompaction(v)
	if c == nil {
		t.Fatal("PickCompaction should still return a compaction with one file available")
	}
	if len(c.Inputs[0].Files) != 1 {
		t.Errorf("available L0 files = %d, want 1", len(c.Inputs[0].Files))
	}
}
