package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_Singleton(t *testing.T) {
	a := New()
	b := New()
	assert.Same(t, a, b)
}

func TestVerdictsCounter(t *testing.T) {
	m := New()
	before := testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("confirmed"))
	m.VerdictsTotal.WithLabelValues("confirmed").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(m.VerdictsTotal.WithLabelValues("confirmed")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", StatusClass(200))
	assert.Equal(t, "3xx", StatusClass(304))
	assert.Equal(t, "4xx", StatusClass(429))
	assert.Equal(t, "5xx", StatusClass(503))
}
