package backlight

// Keyboard backlight companion: lit when the room is dark, off when the
// display percentage says there is plenty of light.

// KbdLevelFor maps the display brightness percentage (0-100) to a keyboard
// backlight level, inverted: dark room, bright keys. The result is clamped
// to the LED's own maximum.
func KbdLevelFor(pct, max int) int {
	var level int
	switch {
	case pct < 50:
		level = 3
	case pct < 60:
		level = 2
	case pct < 80:
		level = 1
	default:
		level = 0
	}
	if level > max {
		level = max
	}
	return level
}
