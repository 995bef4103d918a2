package hub

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traceFilter records its Before/After calls into a shared trace.
type traceFilter struct {
	name      string
	trace     *[]string
	beforeErr error
	afterErr  *error
}

func (f *traceFilter) Before(ctx context.Context, inv *Invocation) error {
	*f.trace = append(*f.trace, "before:"+f.name)
	return f.beforeErr
}

func (f *traceFilter) After(ctx context.Context, inv *Invocation, err error) {
	*f.trace = append(*f.trace, "after:"+f.name)
	if f.afterErr != nil {
		*f.afterErr = err
	}
}

func TestChainOrdering(t *testing.T) {
	t.Run("befores in order, afters reversed on success", func(t *testing.T) {
		var trace []string
		chain := NewChain(
			&traceFilter{name: "A", trace: &trace},
			&traceFilter{name: "B", trace: &trace},
			&traceFilter{name: "C", trace: &trace},
		)

		result, err := chain.Run(context.Background(), &Invocation{Target: "t", Origin: OriginLocal},
			func(ctx context.Context, inv *Invocation) ([]byte, error) {
				trace = append(trace, "terminal")
				return []byte("ok"), nil
			})

		require.NoError(t, err)
		assert.Equal(t, []byte("ok"), result)
		assert.Equal(t, []string{
			"before:A", "before:B", "before:C",
			"terminal",
			"after:C", "after:B", "after:A",
		}, trace)
	})

	t.Run("afters reversed on handler failure", func(t *testing.T) {
		var trace []string
		var seenByA error
		chain := NewChain(
			&traceFilter{name: "A", trace: &trace, afterErr: &seenByA},
			&traceFilter{name: "B", trace: &trace},
		)

		handlerErr := errors.New("handler failed")
		_, err := chain.Run(context.Background(), &Invocation{Target: "t", Origin: OriginLocal},
			func(ctx context.Context, inv *Invocation) ([]byte, error) {
				return nil, handlerErr
			})

		assert.Equal(t, handlerErr, err)
		assert.Equal(t, []string{"before:A", "before:B", "after:B", "after:A"}, trace)
		assert.Equal(t, handlerErr, seenByA)
	})
}

func TestChainShortCircuit(t *testing.T) {
	var trace []string
	var seenByA error
	denied := errors.New("denied")
	chain := NewChain(
		&traceFilter{name: "A", trace: &trace, afterErr: &seenByA},
		&traceFilter{name: "B", trace: &trace, beforeErr: denied},
		&traceFilter{name: "C", trace: &trace},
	)

	terminalRan := false
	_, err := chain.Run(context.Background(), &Invocation{Target: "t", Origin: OriginLocal},
		func(ctx context.Context, inv *Invocation) ([]byte, error) {
			terminalRan = true
			return nil, nil
		})

	require.Error(t, err)
	assert.Equal(t, denied, err)
	assert.False(t, terminalRan)

	// C was never entered so it gets no After; B failed its own Before so
	// only A, which fully entered, unwinds.
	assert.Equal(t, []string{"before:A", "before:B", "after:A"}, trace)
	assert.Equal(t, denied, seenByA)
}

func TestChainPanicRecovery(t *testing.T) {
	var trace []string
	var seenByA error
	chain := NewChain(&traceFilter{name: "A", trace: &trace, afterErr: &seenByA})

	result, err := chain.Run(context.Background(), &Invocation{Target: "boom", Origin: OriginLocal},
		func(ctx context.Context, inv *Invocation) ([]byte, error) {
			panic("kaboom")
		})

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, []string{"before:A", "after:A"}, trace)
	assert.Equal(t, err, seenByA)
}

func TestEmptyChain(t *testing.T) {
	chain := NewChain()

	result, err := chain.Run(context.Background(), &Invocation{Target: "t", Origin: OriginLocal},
		func(ctx context.Context, inv *Invocation) ([]byte, error) {
			return []byte("direct"), nil
		})

	require.NoError(t, err)
	assert.Equal(t, []byte("direct"), result)
}

func TestChainUse(t *testing.T) {
	var trace []string
	chain := NewChain()
	chain.Use(&traceFilter{name: "late", trace: &trace})

	_, err := chain.Run(context.Background(), &Invocation{Target: "t", Origin: OriginLocal},
		func(ctx context.Context, inv *Invocation) ([]byte, error) { return nil, nil })

	require.NoError(t, err)
	assert.Equal(t, []string{"before:late", "after:late"}, trace)
}
