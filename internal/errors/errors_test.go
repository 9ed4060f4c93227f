package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildWithCategoryAndContext(t *testing.T) {
	t.Parallel()

	ee := Newf("stream open failed: %s", "device busy").
		Component("capture").
		Category(CategoryInitialization).
		Context("device", 2).
		Timing("open_stream", 15*time.Millisecond).
		Build()

	assert.Equal(t, "stream open failed: device busy", ee.Error())
	assert.Equal(t, "capture", ee.GetComponent())
	assert.Equal(t, "audio-initialization", ee.GetCategory())

	ctx := ee.GetContext()
	assert.Equal(t, 2, ctx["device"])
	assert.Equal(t, "open_stream", ctx["operation"])
	assert.Equal(t, int64(15), ctx["duration_ms"])

	// The returned map is a copy
	ctx["device"] = 7
	assert.Equal(t, 2, ee.GetContext()["device"])
}

func TestCategoryIsInheritedFromWrappedError(t *testing.T) {
	t.Parallel()

	inner := New(NewStd("no such host")).Category(CategoryConfiguration).Build()
	outer := New(fmt.Errorf("resolve endpoint: %w", inner)).Build()

	assert.Equal(t, CategoryConfiguration, outer.Category)
	assert.True(t, IsCategory(outer, CategoryConfiguration))
}

func TestIsMatchesCategory(t *testing.T) {
	t.Parallel()

	a := New(NewStd("a")).Category(CategoryEncoding).Build()
	b := New(NewStd("b")).Category(CategoryEncoding).Build()
	c := New(NewStd("c")).Category(CategoryNetwork).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestUnwrapAndAs(t *testing.T) {
	t.Parallel()

	sentinel := NewStd("sentinel")
	ee := New(sentinel).Category(CategoryNetwork).Build()
	wrapped := fmt.Errorf("send: %w", ee)

	assert.True(t, Is(wrapped, sentinel))

	var target *EnhancedError
	require.True(t, As(wrapped, &target))
	assert.Equal(t, CategoryNetwork, target.Category)
	assert.Equal(t, sentinel, Unwrap(target))
}

func TestNilErrorUsesCategoryAsMessage(t *testing.T) {
	t.Parallel()

	ee := New(nil).Category(CategoryState).Build()
	assert.Equal(t, "state", ee.Error())
}

func TestComponentAutoDetection(t *testing.T) {
	t.Parallel()

	// Frames inside this package are skipped, so the first foreign caller wins.
	ee := New(NewStd("x")).Build()
	component := ee.GetComponent()
	assert.NotEmpty(t, component)
	assert.NotEqual(t, "errors", component)
}

func TestValidationError(t *testing.T) {
	t.Parallel()

	ee := ValidationError("port must be between 1 and 65535")
	assert.True(t, IsCategory(ee, CategoryValidation))
	assert.Contains(t, ee.Error(), "port")
}

func TestJoin(t *testing.T) {
	t.Parallel()

	a := NewStd("a")
	b := NewStd("b")
	joined := Join(a, b)
	assert.True(t, Is(joined, a))
	assert.True(t, Is(joined, b))
}
