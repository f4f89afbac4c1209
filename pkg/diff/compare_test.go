package diff

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/copystructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/tracelog/pkg/render"
	"github.com/fyrsmithlabs/tracelog/pkg/rendered"
)

type Order struct {
	ID       int
	Status   string
	Items    []LineItem
	Shipping *Address
	Tags     map[string]string
	Notes    string `diff:"-"`
	Card     string `log:"mask,last=4"`
	Updated  time.Time
}

type LineItem struct {
	SKU      string
	Quantity int
}

type Address struct {
	City   string
	Street Street
}

type Street struct {
	Name   string
	Number Number
}

type Number struct {
	Value int
	Unit  string
}

func paths(changes []ChangeRecord) []string {
	out := make([]string, len(changes))
	for i, c := range changes {
		out[i] = c.Path
	}
	return out
}

func sampleOrder() Order {
	return Order{
		ID:     1,
		Status: "Pending",
		Items: []LineItem{
			{SKU: "A", Quantity: 1},
			{SKU: "B", Quantity: 2},
		},
		Shipping: &Address{City: "Oslo", Street: Street{Name: "Main", Number: Number{Value: 1}}},
		Tags:     map[string]string{"channel": "web"},
		Card:     "4111111111111111",
		Updated:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCompare_IdenticalCopy(t *testing.T) {
	before := sampleOrder()
	cp, err := copystructure.Copy(before)
	require.NoError(t, err)

	assert.Empty(t, Compare(before, cp.(Order)))
	assert.Empty(t, Compare(&before, &before))
	assert.Empty(t, Compare(nil, nil))

	type rate struct{ Rate float64 }
	nan := rate{Rate: math.NaN()}
	assert.Empty(t, Compare(nan, nan))
	assert.Empty(t, Compare(map[string]float64{"r": math.NaN()}, map[string]float64{"r": math.NaN()}))
}

func TestCompare_ScalarChange(t *testing.T) {
	type status struct{ Status string }

	changes := Compare(status{Status: "Pending"}, status{Status: "Shipped"})
	require.Len(t, changes, 1)
	assert.Equal(t, "Status", changes[0].Path)
	assert.Equal(t, "Pending", changes[0].OldValue.Text())
	assert.Equal(t, "Shipped", changes[0].NewValue.Text())
	assert.Equal(t, "string", changes[0].ValueType)
	assert.Equal(t, "Status: Pending -> Shipped", changes[0].String())
}

func TestCompare_ListLengthChange(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Items = append(after.Items, LineItem{SKU: "C", Quantity: 3})
	after.Items[0].Quantity = 99

	changes := Compare(before, after)
	require.Len(t, changes, 1, "length change is reported once without per-index records")
	assert.Equal(t, "Items", changes[0].Path)
	assert.Equal(t, "Count: 2", changes[0].OldValue.Text())
	assert.Equal(t, "Count: 3", changes[0].NewValue.Text())
}

func TestCompare_ListElementChange(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Items[1].Quantity = 5

	changes := Compare(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Items[1].Quantity", changes[0].Path)
	assert.Equal(t, "2", changes[0].OldValue.Text())
	assert.Equal(t, "5", changes[0].NewValue.Text())
}

func TestCompare_ExcludedFieldNeverAppears(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Notes = "changed"

	assert.Empty(t, Compare(before, after))

	// The same field still renders when logged directly.
	got := render.New(render.DefaultOptions()).Render(LineItem{SKU: "changed"})
	sku, ok := got.Lookup("SKU")
	require.True(t, ok)
	assert.Equal(t, "changed", sku.Text())
}

func TestCompare_MaskedFieldValues(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Card = "5500000000000004"

	changes := Compare(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Card", changes[0].Path)
	assert.Equal(t, "***1111", changes[0].OldValue.Text())
	assert.Equal(t, "***0004", changes[0].NewValue.Text())
}

func TestCompare_NestedPath(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Shipping = &Address{City: "Bergen", Street: before.Shipping.Street}

	changes := Compare(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Shipping.City", changes[0].Path)
}

func TestCompare_NullTransitions(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Shipping = nil

	changes := Compare(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Shipping", changes[0].Path)
	assert.Equal(t, rendered.KindMapping, changes[0].OldValue.Kind())
	assert.True(t, changes[0].NewValue.IsNull())
	assert.Equal(t, "Address", changes[0].ValueType)

	changes = Compare(nil, LineItem{SKU: "A"})
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].Path)
	assert.True(t, changes[0].OldValue.IsNull())
}

func TestCompare_TypeChange(t *testing.T) {
	type holder struct{ Value any }

	changes := Compare(holder{Value: 1}, holder{Value: "1"})
	require.Len(t, changes, 1)
	assert.Equal(t, "Value", changes[0].Path)
	assert.Equal(t, "string", changes[0].ValueType)
}

func TestCompare_Maps(t *testing.T) {
	before := map[string]int{"a": 1, "b": 2, "c": 3}
	after := map[string]int{"b": 2, "c": 4, "d": 5}

	changes := Compare(before, after)
	assert.ElementsMatch(t, []string{"[a]", "[c]", "[d]"}, paths(changes))

	for _, c := range changes {
		switch c.Path {
		case "[a]":
			assert.Equal(t, "1", c.OldValue.Text())
			assert.True(t, c.NewValue.IsNull())
		case "[d]":
			assert.True(t, c.OldValue.IsNull())
			assert.Equal(t, "5", c.NewValue.Text())
		}
	}

	// Documented order: keys sorted.
	assert.Equal(t, []string{"[a]", "[c]", "[d]"}, paths(changes))
}

func TestCompare_MapSensitiveKey(t *testing.T) {
	changes := Compare(map[string]string{"password": "old"}, map[string]string{"password": "new"})
	require.Len(t, changes, 1)
	assert.Equal(t, "[REDACTED]", changes[0].OldValue.Text())
	assert.Equal(t, "[REDACTED]", changes[0].NewValue.Text())
}

func TestCompare_DepthLimit(t *testing.T) {
	before := sampleOrder()
	after := sampleOrder()
	after.Shipping = &Address{City: "Oslo", Street: Street{Name: "Main", Number: Number{Value: 2}}}

	// Depth 3 reaches Shipping.Street.Number as a whole, which is compared
	// with DeepEqual and reported with placeholders.
	changes := Compare(before, after, WithMaxDepth(3))
	require.Len(t, changes, 1)
	assert.Equal(t, "Shipping.Street.Number", changes[0].Path)
	assert.Equal(t, "<Number> (max depth reached)", changes[0].OldValue.Text())
	assert.Equal(t, "<Number> (max depth reached)", changes[0].NewValue.Text())

	changes = Compare(before, after, WithMaxDepth(4))
	require.Len(t, changes, 1)
	assert.Equal(t, "Shipping.Street.Number.Value", changes[0].Path)

	changes = Compare(before, after, WithMaxDepth(0))
	require.Len(t, changes, 1)
	assert.Equal(t, "", changes[0].Path)
}

func TestCompare_TimeEquality(t *testing.T) {
	type stamp struct{ At time.Time }
	utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("CET", 3600))

	assert.Empty(t, Compare(stamp{At: utc}, stamp{At: local}))
	assert.Len(t, Compare(stamp{At: utc}, stamp{At: utc.Add(time.Second)}), 1)
}

type lazyProfile struct {
	name    string
	failing bool
}

func (p lazyProfile) LogFields() []render.Field {
	f := []render.Field{{Name: "Name", Value: p.name}}
	if p.failing {
		f = append(f, render.Field{Name: "Avatar", Err: errors.New("not loaded")})
	} else {
		f = append(f, render.Field{Name: "Avatar", Value: "a.png"})
	}
	return f
}

func TestCompare_FieldReadFailure(t *testing.T) {
	changes := Compare(lazyProfile{name: "ann"}, lazyProfile{name: "bob", failing: true})
	require.Len(t, changes, 2)
	assert.Equal(t, "Name", changes[0].Path)
	assert.Equal(t, "Avatar", changes[1].Path)
	assert.Equal(t, rendered.KindError, changes[1].OldValue.Kind())
	assert.Equal(t, rendered.KindError, changes[1].NewValue.Kind())
}

func TestCompare_Bytes(t *testing.T) {
	type blob struct{ Data []byte }
	changes := Compare(blob{Data: []byte("ab")}, blob{Data: []byte("abc")})
	require.Len(t, changes, 1)
	assert.Equal(t, "<2 bytes>", changes[0].OldValue.Text())
	assert.Equal(t, "<3 bytes>", changes[0].NewValue.Text())
}

type PIN struct {
	PIN string
}

type Wallet struct {
	Owner  string
	Cards  []string          `log:"exclude"`
	Vault  map[string]string `log:"exclude"`
	Hidden PIN               `log:"redact"`
	Codes  []string          `log:"mask,last=2"`
	Home   Address           `log:"mask,last=2"`
}

func sampleWallet() Wallet {
	return Wallet{
		Owner:  "Ann",
		Cards:  []string{"4111-1111-1111-1111"},
		Vault:  map[string]string{"k": "old-secret"},
		Hidden: PIN{PIN: "1234"},
		Codes:  []string{"AB12", "CD34"},
		Home:   Address{City: "Oslo"},
	}
}

func TestCompare_HiddenContainersNeverLeak(t *testing.T) {
	before := sampleWallet()
	after := sampleWallet()
	after.Cards = []string{"5500-0000-0000-0004"}
	after.Vault = map[string]string{"k": "new-secret"}
	after.Hidden.PIN = "9999"

	changes := Compare(before, after)
	require.Equal(t, []string{"Cards", "Vault", "Hidden"}, paths(changes))

	assert.Equal(t, rendered.KindExcluded, changes[0].OldValue.Kind())
	assert.Equal(t, rendered.KindExcluded, changes[0].NewValue.Kind())
	assert.Equal(t, rendered.KindExcluded, changes[1].NewValue.Kind())
	assert.Equal(t, "[REDACTED]", changes[2].OldValue.Text())
	assert.Equal(t, "[REDACTED]", changes[2].NewValue.Text())

	for _, c := range changes {
		for _, leak := range []string{"4111", "5500", "secret", "1234", "9999"} {
			assert.NotContains(t, c.String(), leak)
		}
	}
}

func TestCompare_MaskedContainerMasksLeaves(t *testing.T) {
	before := sampleWallet()
	after := sampleWallet()
	after.Codes[1] = "EF56"

	changes := Compare(before, after)
	require.Len(t, changes, 1)
	assert.Equal(t, "Codes[1]", changes[0].Path)
	assert.Equal(t, "***34", changes[0].OldValue.Text())
	assert.Equal(t, "***56", changes[0].NewValue.Text())
}

func TestCompare_DirectiveAtDepthLimit(t *testing.T) {
	before := sampleWallet()
	after := sampleWallet()
	after.Home.City = "Bergen"
	after.Hidden.PIN = "9999"

	changes := Compare(before, after, WithMaxDepth(1))
	require.Equal(t, []string{"Hidden", "Home"}, paths(changes))
	assert.Equal(t, "[REDACTED]", changes[0].NewValue.Text())
	assert.True(t, strings.HasPrefix(changes[1].NewValue.Text(), "***"))
	assert.NotContains(t, changes[1].NewValue.Text(), "Bergen")
	assert.NotContains(t, changes[1].OldValue.Text(), "Oslo")

	type vault struct {
		Inner Address `log:"exclude"`
	}
	changes = Compare(vault{Inner: Address{City: "Oslo"}}, vault{Inner: Address{City: "Bergen"}}, WithMaxDepth(1))
	require.Len(t, changes, 1)
	assert.Equal(t, rendered.KindExcluded, changes[0].OldValue.Kind())
	assert.Equal(t, rendered.KindExcluded, changes[0].NewValue.Kind())
}

func TestCompare_MapKeysThatFormatAlike(t *testing.T) {
	changes := Compare(map[any]int{1: 1, "1": 2}, map[any]int{1: 1, "1": 3})
	require.Len(t, changes, 1)
	assert.Equal(t, "[1]", changes[0].Path)
	assert.Equal(t, "2", changes[0].OldValue.Text())
	assert.Equal(t, "3", changes[0].NewValue.Text())
}
