package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	p, err := New(Config{Enable: false})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestNewFailsOnUnreachableAddress(t *testing.T) {
	_, err := New(Config{Enable: true, Address: "127.0.0.1:1", DialTimeout: 0})
	assert.Error(t, err)
}

func TestNilPublisherPublishIsNoOp(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() { p.Publish(Event{Kind: "hit"}) })
}

func TestNilPublisherCloseIsNoOp(t *testing.T) {
	var p *Publisher
	assert.NoError(t, p.Close())
}
