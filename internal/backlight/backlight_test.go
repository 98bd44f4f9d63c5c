package backlight

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDevice(t *testing.T, name string, max, current int) string {
	t.Helper()
	classDir := t.TempDir()
	dir := filepath.Join(classDir, name)
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeAttr(t, dir, "max_brightness", max)
	writeAttr(t, dir, "brightness", current)
	writeAttr(t, dir, "actual_brightness", current)
	return classDir
}

func writeAttr(t *testing.T, dir, name string, v int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(strconv.Itoa(v)+"\n"), 0o644))
}

func readAttr(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(b)
}

func TestOpenReadsMax(t *testing.T) {
	classDir := fakeDevice(t, "intel_backlight", 937, 400)
	d, err := open(classDir, "intel_backlight")
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 937, d.Max())
	cur, err := d.Current()
	require.NoError(t, err)
	assert.Equal(t, 400, cur)
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := open(t.TempDir(), "nope")
	assert.ErrorIs(t, err, ErrDeviceGone)
}

func TestApplyWritesLevel(t *testing.T) {
	classDir := fakeDevice(t, "bl", 255, 0)
	d, err := open(classDir, "bl")
	require.NoError(t, err)

	require.NoError(t, d.Apply(120))
	assert.Equal(t, "120", readAttr(t, filepath.Join(classDir, "bl"), "brightness"))
}

func TestApplyClamps(t *testing.T) {
	classDir := fakeDevice(t, "bl", 255, 0)
	dir := filepath.Join(classDir, "bl")
	d, err := open(classDir, "bl")
	require.NoError(t, err)

	require.NoError(t, d.Apply(9999))
	assert.Equal(t, "255", readAttr(t, dir, "brightness"))

	// Keep actual_brightness in sync the way the kernel would.
	writeAttr(t, dir, "actual_brightness", 255)

	require.NoError(t, d.Apply(-50))
	assert.Equal(t, "0", readAttr(t, dir, "brightness"))
}

func TestApplySkipsWhenAlreadyThere(t *testing.T) {
	classDir := fakeDevice(t, "bl", 255, 80)
	dir := filepath.Join(classDir, "bl")
	d, err := open(classDir, "bl")
	require.NoError(t, err)

	// Make the brightness file unwritable-looking by filling it with a
	// marker; Apply(80) must not touch it since actual_brightness agrees.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "brightness"), []byte("marker"), 0o644))
	require.NoError(t, d.Apply(80))
	assert.Equal(t, "marker", readAttr(t, dir, "brightness"))
}

func TestApplyDeviceGone(t *testing.T) {
	classDir := fakeDevice(t, "bl", 255, 0)
	d, err := open(classDir, "bl")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(filepath.Join(classDir, "bl")))
	err = d.Apply(10)
	assert.ErrorIs(t, err, ErrDeviceGone)
	assert.False(t, errors.Is(err, ErrWriteFailed))
}

func TestKbdLevelFor(t *testing.T) {
	tests := []struct {
		pct, max, want int
	}{
		{0, 3, 3},
		{49, 3, 3},
		{50, 3, 2},
		{59, 3, 2},
		{60, 3, 1},
		{79, 3, 1},
		{80, 3, 0},
		{100, 3, 0},
		{0, 1, 1}, // clamped to the LED's own max
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KbdLevelFor(tt.pct, tt.max), "pct=%d max=%d", tt.pct, tt.max)
	}
}
