// Package trading holds position sizing arithmetic shared by the engine.
package trading

// CalcCloseAmount returns the contract quantity a partial close of ratio
// should send, capped at the remaining position size. Zero means nothing
// sensible to close.
func CalcCloseAmount(currentAmount, ratio float64) float64 {
	if currentAmount <= 0 || ratio <= 0 {
		return 0
	}
	amount := currentAmount * ratio
	if amount > currentAmount {
		amount = currentAmount
	}
	return amount
}

// CalcQuantity converts a USD notional at price into a contract quantity.
func CalcQuantity(notionalUSD, price float64) float64 {
	if notionalUSD <= 0 || price <= 0 {
		return 0
	}
	return notionalUSD / price
}
