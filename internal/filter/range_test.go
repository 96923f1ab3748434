package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBound_Active(t *testing.T) {
	d := Range[int]{From: 2000, To: 2020}

	assert.False(t, Full(d).Active())
	assert.True(t, Bound[int]{Selected: Range[int]{From: 2005, To: 2020}, Domain: d}.Active())
	assert.True(t, Bound[int]{Selected: Range[int]{From: 2000, To: 2019}, Domain: d}.Active())
	assert.False(t, Bound[int]{Selected: Range[int]{From: 1990, To: 2030}, Domain: d}.Active(),
		"a selection wider than the domain does not narrow anything")
}

func TestRange_Clamp(t *testing.T) {
	d := Range[int]{From: 2000, To: 2020}

	assert.Equal(t, Range[int]{From: 2005, To: 2010}, Range[int]{From: 2005, To: 2010}.Clamp(d))
	assert.Equal(t, Range[int]{From: 2000, To: 2020}, Range[int]{From: 1990, To: 2030}.Clamp(d))
	assert.Equal(t, Range[int]{From: 2020, To: 2020}, Range[int]{From: 2030, To: 2040}.Clamp(d))
}

func TestRange_Contains(t *testing.T) {
	r := Range[float64]{From: 6.5, To: 8}
	assert.True(t, r.Contains(6.5))
	assert.True(t, r.Contains(8))
	assert.False(t, r.Contains(8.01))
}
