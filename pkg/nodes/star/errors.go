package star

import "errors"

var (
	// ErrMissingModule is returned when the module source cannot be found.
	ErrMissingModule = errors.New("guest module not found")

	// ErrModuleLoad is returned for modules that fail to evaluate or lack
	// the required meta / entry point.
	ErrModuleLoad = errors.New("guest module load error")

	// ErrWriteNotDeclared is returned when a writer targets a key outside
	// the module's declared write set.
	ErrWriteNotDeclared = errors.New("write not declared in module meta")

	// ErrBudgetExceeded is returned when a write allocation would exceed
	// the module's write budget. The budget is checked before the write
	// is accepted.
	ErrBudgetExceeded = errors.New("guest write budget exceeded")

	// ErrInstructionLimit is returned when the per-invocation execution
	// step cap is reached.
	ErrInstructionLimit = errors.New("guest execution exceeded instruction limit")

	// ErrIoBudgetExceeded is returned when a CSV read would exceed the
	// module's IO budget, including the zero budget that disables IO.
	ErrIoBudgetExceeded = errors.New("guest io budget exceeded")

	// ErrIoNotEnabled is returned when IO is used without both the
	// capability and the policy agreeing.
	ErrIoNotEnabled = errors.New("guest io not enabled")

	// ErrPathTraversal is returned for CSV resources that are absolute,
	// contain a ".." segment, or use backslashes.
	ErrPathTraversal = errors.New("invalid csv resource path")
)
