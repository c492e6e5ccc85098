package gecs

import "github.com/gogpu/gecs/pipeline"

// ViewportDimensions is the built-in viewport-scoped component every
// viewport holds.
type ViewportDimensions = pipeline.ViewportDimensions

// ViewportDimensionsType is the registered name of ViewportDimensions.
const ViewportDimensionsType = pipeline.ViewportDimensionsType

// Target is the value of a render-target component.
type Target = pipeline.Target
