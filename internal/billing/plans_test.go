package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vega/internal/types"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in      string
		want    Plan
		wantErr bool
	}{
		{in: "", want: PlanPro},
		{in: "pro", want: PlanPro},
		{in: " Ultra ", want: PlanUltra},
		{in: "enterprise", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePlan(tt.in)
			if tt.wantErr {
				var appErr *types.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, types.ErrCodeValidationInvalidPlan, appErr.Code)
				assert.Equal(t, "Invalid plan type", appErr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStaticPlanRegistry_Price(t *testing.T) {
	r := NewStaticPlanRegistry()

	tests := []struct {
		name     string
		plan     Plan
		duration int
		want     int64
	}{
		{"pro monthly", PlanPro, 1, 990},
		{"pro eleven months", PlanPro, 11, 990},
		{"pro yearly", PlanPro, 12, 790},
		{"ultra monthly", PlanUltra, 6, 1990},
		{"ultra two years", PlanUltra, 24, 1590},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := r.Price(tt.plan, tt.duration)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Amount)
			assert.NotEmpty(t, p.Description)
		})
	}

	_, err := r.Price(Plan("gold"), 1)
	assert.Error(t, err)
}

func TestStaticPlanRegistry_ResolveProductID(t *testing.T) {
	r := NewStaticPlanRegistry()

	assert.Equal(t, types.ProductUltra, r.ResolveProductID("ultra", 990))
	assert.Equal(t, types.ProductPro, r.ResolveProductID("pro", 1990))
	assert.Equal(t, types.ProductUltra, r.ResolveProductID("", 1990))
	assert.Equal(t, types.ProductUltra, r.ResolveProductID("", 1590.00))
	assert.Equal(t, types.ProductPro, r.ResolveProductID("", 790))
	assert.Equal(t, types.ProductPro, r.ResolveProductID("unknown", 123))
}

func TestStaticPlanRegistry_PublicPlans(t *testing.T) {
	r := NewStaticPlanRegistry()
	plans := r.PublicPlans()
	require.Len(t, plans, 2)
	assert.Equal(t, PlanPro, plans[0].ID)
	assert.Equal(t, PlanUltra, plans[1].ID)
	assert.Equal(t, "RUB", plans[0].Currency)

	// Callers must not be able to mutate the registry through the result.
	plans[0].Features[0] = "changed"
	assert.NotEqual(t, "changed", r.PublicPlans()[0].Features[0])
}

func TestPlanHintFromData(t *testing.T) {
	assert.Equal(t, "ultra", planHintFromData(json.RawMessage(`{"plan":"ultra"}`)))
	assert.Equal(t, "pro", planHintFromData(json.RawMessage(`"{\"plan\":\"pro\"}"`)))
	assert.Equal(t, "", planHintFromData(nil))
	assert.Equal(t, "", planHintFromData(json.RawMessage(`null`)))
	assert.Equal(t, "", planHintFromData(json.RawMessage(`"not json"`)))
	assert.Equal(t, "", planHintFromData(json.RawMessage(`[1,2]`)))
}
