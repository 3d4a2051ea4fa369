package quotews

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: make(map[string]bool)}

	c.handleSubscription(subscribeMsg{Type: "SUBSCRIBE", Symbol: "BTC"})
	c.handleSubscription(subscribeMsg{Type: "SUBSCRIBE", Symbol: "ETH"})
	assert.True(t, c.isSubscribed("BTC"))
	assert.True(t, c.isSubscribed("ETH"))
	assert.False(t, c.isSubscribed("SOL"))

	c.handleSubscription(subscribeMsg{Type: "UNSUBSCRIBE", Symbol: "BTC"})
	assert.False(t, c.isSubscribed("BTC"))
	assert.True(t, c.isSubscribed("ETH"))
}

func TestHandleSubscriptionIgnoresMalformed(t *testing.T) {
	c := &client{subs: make(map[string]bool)}

	c.handleSubscription(subscribeMsg{Type: "SUBSCRIBE"})
	c.handleSubscription(subscribeMsg{Type: "bogus", Symbol: "BTC"})

	assert.Empty(t, c.subs)
}
