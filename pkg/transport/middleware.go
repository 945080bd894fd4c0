package transport

// Middleware decorates a ToolCaller.
type Middleware func(ToolCaller) ToolCaller

// Chain composes middlewares so that the first one sees a call first:
// Chain(a, b)(h) behaves as a(b(h)). Nil entries are skipped, which lets
// callers splice in optional middleware without branching.
func Chain(middlewares ...Middleware) Middleware {
	return func(final ToolCaller) ToolCaller {
		caller := final
		for i := range middlewares {
			if mw := middlewares[len(middlewares)-1-i]; mw != nil {
				caller = mw(caller)
			}
		}
		return caller
	}
}
