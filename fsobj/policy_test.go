package fsobj

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPreserveAll(t *testing.T) {
	p := PreserveAll()
	assert.Equal(t, uint32(0o7777), p.File.ModeMask)
	assert.Equal(t, uint32(0o7777), p.Dir.ModeMask)
	assert.True(t, p.File.UserAndTime.Any())
	assert.True(t, p.Symlink.Any())
}

func TestPreserveDefaultCp(t *testing.T) {
	p := PreserveDefaultCp()
	assert.Equal(t, uint32(0o0777), p.File.ModeMask)
	assert.False(t, p.File.UserAndTime.Any())
	assert.False(t, p.Symlink.Any())
}

func TestMetadataEqualNsecZeroSided(t *testing.T) {
	settings := CompareSettings{Mtime: true}
	a := Meta{Mtime: time.Unix(100, 0)}
	b := Meta{Mtime: time.Unix(100, 500)}
	// one side has 0ns, should be considered equal at second precision
	assert.True(t, MetadataEqual(settings, a, b, 0, 0))
}

func TestMetadataEqualNsecBothNonZeroDiffer(t *testing.T) {
	settings := CompareSettings{Mtime: true}
	a := Meta{Mtime: time.Unix(100, 500)}
	b := Meta{Mtime: time.Unix(100, 600)}
	assert.False(t, MetadataEqual(settings, a, b, 0, 0))
}

func TestMetadataEqualSizeAxis(t *testing.T) {
	settings := CompareSettings{Size: true}
	assert.True(t, MetadataEqual(settings, Meta{}, Meta{}, 10, 10))
	assert.False(t, MetadataEqual(settings, Meta{}, Meta{}, 10, 11))
}

func TestMetadataEqualModeMasksHighBits(t *testing.T) {
	settings := CompareSettings{Mode: true}
	a := Meta{Mode: 0o104755} // with setuid-like high bits outside 0o7777 range hypothetically
	b := Meta{Mode: 0o004755}
	assert.True(t, MetadataEqual(settings, a, b, 0, 0))
}

func TestObjectConstructors(t *testing.T) {
	f := File("a/b.txt", Meta{Mode: 0o644}, 10)
	assert.Equal(t, KindFile, f.Kind)
	assert.Equal(t, int64(10), f.Size)

	d := Dir("a", Meta{Mode: 0o755}, 3)
	assert.Equal(t, KindDir, d.Kind)
	assert.Equal(t, uint64(3), d.NumEntries)

	s := Symlink("a/link", Meta{Mode: 0o644}, "../target")
	assert.Equal(t, KindSymlink, s.Kind)
	assert.Equal(t, uint32(0), s.Meta.Mode)
	assert.Equal(t, "../target", s.LinkTarget)
}
