package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCatalog = map[string]Product{
	"p-1": {ID: "p-1", Name: "Wireless Mouse", CategoryID: "electronics", Price: 299, Stock: 10},
	"p-2": {ID: "p-2", Name: "Paperback", CategoryID: "books", Price: 150, Stock: 3},
}

func TestVerifyLines_HappyPath(t *testing.T) {
	lines := []CartLine{
		{ProductID: "p-1", Quantity: 2, AssertedUnitPrice: 299},
		{ProductID: "p-2", Quantity: 1, AssertedUnitPrice: 150},
	}

	verified, total, err := VerifyLines(lines, testCatalog)
	require.NoError(t, err)
	require.Len(t, verified, 2)
	assert.Equal(t, int64(748), total)
	assert.Equal(t, "electronics", verified[0].CategoryID)
	assert.Equal(t, int64(598), verified[0].Subtotal())
}

func TestVerifyLines_EmptyCart(t *testing.T) {
	_, _, err := VerifyLines(nil, testCatalog)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestVerifyLines_InvalidQuantity(t *testing.T) {
	_, _, err := VerifyLines([]CartLine{{ProductID: "p-1", Quantity: 0, AssertedUnitPrice: 299}}, testCatalog)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestVerifyLines_UnknownProduct(t *testing.T) {
	_, _, err := VerifyLines([]CartLine{{ProductID: "ghost", Quantity: 1, AssertedUnitPrice: 1}}, testCatalog)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestVerifyLines_PriceMismatchFailsWholeSubmission(t *testing.T) {
	// 第一行合法，第二行报价不符：整单拒绝，不做部分接受
	lines := []CartLine{
		{ProductID: "p-1", Quantity: 1, AssertedUnitPrice: 299},
		{ProductID: "p-2", Quantity: 1, AssertedUnitPrice: 1},
	}

	verified, total, err := VerifyLines(lines, testCatalog)
	require.Error(t, err)
	assert.Nil(t, verified)
	assert.Zero(t, total)

	var mismatch *PriceMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "p-2", mismatch.ProductID)
	assert.Equal(t, int64(1), mismatch.Asserted)
	assert.Equal(t, int64(150), mismatch.Canonical)
}

func TestVerifyLines_InsufficientStock(t *testing.T) {
	_, _, err := VerifyLines([]CartLine{{ProductID: "p-2", Quantity: 5, AssertedUnitPrice: 150}}, testCatalog)

	var stock *InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.Equal(t, 5, stock.Requested)
	assert.Equal(t, 3, stock.Available)
}

func TestCategoryIDs_Deduplicates(t *testing.T) {
	lines := []VerifiedLine{
		{ProductID: "a", CategoryID: "electronics"},
		{ProductID: "b", CategoryID: "electronics"},
		{ProductID: "c", CategoryID: "books"},
		{ProductID: "d"},
	}
	assert.Equal(t, []string{"electronics", "books"}, CategoryIDs(lines))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ProductIDs(lines))
}
