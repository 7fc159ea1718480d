package users

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/advent-arcade/internal/domain"
)

// Display name and password limits
const (
	MinNameLength     = 3
	MaxNameLength     = 30
	MinPasswordLength = 6
	// bcrypt ignores everything past 72 bytes
	MaxPasswordBytes = 72
)

// DefaultAvatarStyle is assigned at registration
const DefaultAvatarStyle = "adventurer"

// AvatarStyles lists the accepted avatar styles
var AvatarStyles = []string{
	"adventurer",
	"avataaars",
	"big-smile",
	"bottts",
	"fun-emoji",
	"lorelei",
	"micah",
	"pixel-art",
}

const maxAvatarOptions = 32

var avatarOptionKey = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{0,31}$`)

// ValidateDisplayName checks the character set and length of a display name.
// Only letters, digits, spaces and ".-_@#" are accepted.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n < MinNameLength || n > MaxNameLength {
		return fmt.Errorf("%w: must be %d to %d characters", domain.ErrInvalidFormat, MinNameLength, MaxNameLength)
	}
	for _, r := range name {
		if !allowedNameRune(r) {
			return fmt.Errorf("%w: character %q not allowed", domain.ErrInvalidFormat, r)
		}
	}
	return nil
}

func allowedNameRune(r rune) bool {
	switch {
	case r == ' ', r == '.', r == '-', r == '_', r == '@', r == '#':
		return true
	case isEmoji(r):
		return false
	default:
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}
}

// isEmoji reports runes from the pictographic blocks, variation selectors and
// the zero width joiner
func isEmoji(r rune) bool {
	return (r >= 0x1F000 && r <= 0x1FAFF) ||
		(r >= 0x2600 && r <= 0x27BF) ||
		(r >= 0xFE00 && r <= 0xFE0F) ||
		r == 0x200D
}

// ValidatePassword checks password length
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", domain.ErrWeakPassword, MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return fmt.Errorf("%w: at most %d bytes", domain.ErrWeakPassword, MaxPasswordBytes)
	}
	return nil
}

// ValidateAvatar checks the style against AvatarStyles and the option map shape
func ValidateAvatar(a domain.Avatar) error {
	known := false
	for _, s := range AvatarStyles {
		if a.Style == s {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: unknown style %q", domain.ErrInvalidAvatar, a.Style)
	}
	if len(a.Options) > maxAvatarOptions {
		return fmt.Errorf("%w: too many options", domain.ErrInvalidAvatar)
	}
	for k, v := range a.Options {
		if !avatarOptionKey.MatchString(k) {
			return fmt.Errorf("%w: option %q", domain.ErrInvalidAvatar, k)
		}
		if utf8.RuneCountInString(v) > 64 {
			return fmt.Errorf("%w: option %q value too long", domain.ErrInvalidAvatar, k)
		}
	}
	return nil
}
