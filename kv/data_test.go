package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestData(t *testing.T) {
	t.Run("nil_vs_empty", func(t *testing.T) {
		var absent Data
		present := Data{}

		assert.Nil(t, []byte(absent))
		assert.NotNil(t, []byte(present))
		assert.Equal(t, 0, absent.Len())
		assert.Equal(t, 0, present.Len())
		assert.Equal(t, "", absent.String())
	})

	t.Run("copy_is_owned", func(t *testing.T) {
		backing := []byte("hello")
		view := Data(backing)

		owned := view.Copy()
		backing[0] = 'j'

		assert.Equal(t, []byte("hello"), owned)
		assert.Equal(t, "jello", view.String())
	})

	t.Run("string_materializes", func(t *testing.T) {
		backing := []byte("value")
		view := Data(backing)

		s := view.String()
		backing[0] = 'x'

		assert.Equal(t, "value", s)
	})
}
