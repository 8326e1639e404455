package models

// Estimator constants, in minutes
const (
	estimateBase          = 45
	estimateLargeSizeCM   = 24
	estimateLargeSize     = 10
	estimateChocolate     = 5
	estimatePerExtraPiece = 2
)

var shapeComplexity = map[Shape]int{
	ShapeRound:  0,
	ShapeSquare: 5,
	ShapeBowl:   10,
	ShapeCustom: 20,
}

// EstimateMinutes projects production time from a fixed base plus a complexity
// factor. It is a placeholder and is computed once when the order is created.
func EstimateMinutes(shape Shape, flavor Flavor, sizeCM int, quantity int) int {
	minutes := estimateBase + shapeComplexity[shape]

	if sizeCM >= estimateLargeSizeCM {
		minutes += estimateLargeSize
	}

	if flavor == FlavorChocolate {
		minutes += estimateChocolate
	}

	if quantity > 1 {
		minutes += (quantity - 1) * estimatePerExtraPiece
	}

	return minutes
}
