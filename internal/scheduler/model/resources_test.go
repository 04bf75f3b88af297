package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestParseResources(t *testing.T) {
	parsed, err := ParseResources(map[string]resource.Quantity{
		"cpu":    resource.MustParse("2"),
		"memory": resource.MustParse("1Ki"),
		"slots":  resource.MustParse("500m"),
	})
	require.NoError(t, err)
	assert.Equal(t, Resources{"cpu": 2, "memory": 1024, "slots": 1}, parsed)

	_, err = ParseResources(map[string]resource.Quantity{"cpu": resource.MustParse("-1")})
	assert.Error(t, err)
}

func TestResources_DeepCopyAndAdd(t *testing.T) {
	r := Resources{"cpu": 1}
	c := r.DeepCopy()
	c.Add(Resources{"cpu": 2, "gpu": 1})
	assert.Equal(t, Resources{"cpu": 1}, r)
	assert.Equal(t, Resources{"cpu": 3, "gpu": 1}, c)
	assert.Equal(t, "cpu: 3, gpu: 1", c.String())
}

func TestJobWithNodes_Pop(t *testing.T) {
	a, b, c := &Node{Id: "a"}, &Node{Id: "b"}, &Node{Id: "c"}
	jwn := NewJobWithNodes(&Job{Id: "j"}, a, b, c)

	assert.Equal(t, c, jwn.PopBack())
	assert.Equal(t, a, jwn.PopFront())
	assert.True(t, jwn.HasNodes())
	assert.Equal(t, b, jwn.PopBack())
	assert.False(t, jwn.HasNodes())
	assert.Nil(t, jwn.PopBack())
	assert.Nil(t, jwn.PopFront())
}
