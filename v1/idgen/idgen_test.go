package idgen_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/EliseyGodX/SchedulerGodX/v1/idgen"
)

func TestULIDProducesUniqueLexicallySortableIDs(t *testing.T) {
	g := idgen.NewULID()
	a := g.New()
	b := g.New()

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
	assert.LessOrEqual(t, a, b)
}

func TestAutoincrementStartsAfterSeed(t *testing.T) {
	g := idgen.NewAutoincrement(41)
	assert.Equal(t, "42", g.New())
	assert.Equal(t, "43", g.New())
}

func TestGeneratorInterfaceIsSatisfied(t *testing.T) {
	var gens []idgen.Generator
	gens = append(gens, idgen.NewULID(), idgen.NewAutoincrement(0))
	for _, g := range gens {
		assert.NotEmpty(t, g.New())
	}
}
