// ABOUTME: Tests for version constants
// ABOUTME: Ensures version information is defined and well formed
package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantsDefined(t *testing.T) {
	for name, value := range map[string]string{
		"Version":      Version,
		"Product":      Product,
		"Manufacturer": Manufacturer,
	} {
		assert.NotEmpty(t, value, name)
		assert.LessOrEqual(t, len(value), 100, name)
		for _, placeholder := range []string{"TODO", "FIXME", "XXX", "placeholder"} {
			assert.NotEqual(t, placeholder, value, name)
		}
	}
}

func TestString(t *testing.T) {
	s := String()
	assert.True(t, strings.HasPrefix(s, Product+"/"))
	assert.True(t, strings.HasSuffix(s, Version))
}
