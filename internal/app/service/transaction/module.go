package transaction

import "go.uber.org/fx"

// Module exposes the ledger via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Provide(func(s *Service) TransactionManager { return s }),
)
