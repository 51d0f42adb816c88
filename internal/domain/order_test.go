package domain

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUrgency_EscalateCapsAtMarket(t *testing.T) {
	assert.Equal(t, UrgencyAggressive, UrgencyNormal.Escalate())
	assert.Equal(t, UrgencyUrgent, UrgencyAggressive.Escalate())
	assert.Equal(t, UrgencyMarket, UrgencyUrgent.Escalate())
	assert.Equal(t, UrgencyMarket, UrgencyMarket.Escalate())
}

func TestUrgency_Text(t *testing.T) {
	b, err := json.Marshal(OrderTicket{Urgency: UrgencyAggressive})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"urgency":"AGGRESSIVE"`)

	var ticket OrderTicket
	require.NoError(t, json.Unmarshal([]byte(`{"urgency":"patient"}`), &ticket))
	assert.Equal(t, UrgencyPatient, ticket.Urgency)

	_, err = ParseUrgency("asap")
	assert.Error(t, err)
}

func TestOrderRequest_Validate(t *testing.T) {
	assert.NoError(t, OrderRequest{Symbol: "005930", Side: SideBuy, Quantity: 1}.Validate())

	for _, req := range []OrderRequest{
		{Side: SideBuy, Quantity: 1},
		{Symbol: "005930", Side: "HOLD", Quantity: 1},
		{Symbol: "005930", Side: SideSell},
	} {
		assert.True(t, HasCode(req.Validate(), CodeInvariant), "%+v", req)
	}
}

func TestStatusFromFill(t *testing.T) {
	assert.Equal(t, StatusFilled, StatusFromFill(100, 100, false))
	assert.Equal(t, StatusFilled, StatusFromFill(100, 100, true))
	assert.Equal(t, StatusCancelled, StatusFromFill(100, 40, true))
	assert.Equal(t, StatusPartiallyFilled, StatusFromFill(100, 40, false))
	assert.Equal(t, StatusPending, StatusFromFill(100, 0, false))

	assert.False(t, StatusPartiallyFilled.Terminal())
	assert.True(t, StatusExpired.Terminal())

	ticket := OrderTicket{SubmittedQty: 100, FilledQty: 40}
	assert.Equal(t, int64(60), ticket.Remaining())
}

func TestErrorCodes(t *testing.T) {
	cause := fmt.Errorf("dial: %w", NewError(CodeTransient, "timeout"))
	wrapped := fmt.Errorf("get quote: %w", WrapError(CodeNoPrice, "005930", cause))

	assert.Equal(t, CodeNoPrice, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeNoPrice))
	assert.False(t, HasCode(nil, CodeNoPrice))
	assert.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("plain")))
	assert.Contains(t, wrapped.Error(), "[no_price] 005930: dial: [transient] timeout")
}
