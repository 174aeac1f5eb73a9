package basic

import (
	"github.com/alexsaveliev/srclib-basic-sub000/internal/config"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/frontend"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/graph"
	"github.com/alexsaveliev/srclib-basic-sub000/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder APIs. External consumers use these names; no conversion is
// needed.

type SourceUnit = graph.SourceUnit
type Output = graph.Output
type DefOut = graph.DefOut
type RefOut = graph.RefOut
type GraphResult = frontend.Result
type Config = config.Config

type Store = store.Store
type Unit = store.Unit
type Def = store.Def
type Ref = store.Ref
