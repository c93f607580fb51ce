package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestStdDev(t *testing.T) {
	// variance = (510 - 5*100) / 4 = 2.5
	got := StdDev(5, f(10.0), f(510.0))
	if assert.NotNil(t, got) {
		assert.Equal(t, 1.5811, *got)
	}
}

func TestStdDevUndefined(t *testing.T) {
	assert.Nil(t, StdDev(1, f(10.0), f(510.0)))
	assert.Nil(t, StdDev(0, f(10.0), f(510.0)))
	assert.Nil(t, StdDev(5, nil, f(510.0)))
	assert.Nil(t, StdDev(5, f(10.0), nil))
}

func TestStdDevClampsNegativeVariance(t *testing.T) {
	// constant series: sumsq == n*avg^2, but float error can push the
	// numerator slightly below zero
	got := StdDev(3, f(2.0), f(11.999999999999998))
	if assert.NotNil(t, got) {
		assert.Equal(t, 0.0, *got)
	}
}

func TestStdDevRounding(t *testing.T) {
	// variance = (29 - 3*9)/2 = 1, std = 1
	got := StdDev(3, f(3.0), f(29.0))
	if assert.NotNil(t, got) {
		assert.Equal(t, 1.0, *got)
	}
}
