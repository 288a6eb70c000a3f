package domain

// TaskResult — размеченный результат выполнения handler'а: ровно один из
// Success или Failure (§3 "Sealed result type → tagged variant" в §9).
//
// Go не даёт compile-time exhaustiveness для sum-типов, поэтому Sealed()
// служит единственной защитой: сторонний тип не может реализовать интерфейс
// (метод unexported), а Settle-код обязан делать exhaustive type switch с
// паникой на недостижимом default.
type TaskResult interface {
	sealed()
}

// Success — handler завершился успешно.
type Success struct {
	TaskID string
	Result map[string]any
}

func (Success) sealed() {}

// Failure — handler завершился ошибкой.
//
// Retryable классифицируется Retry Strategy (§4.2): true означает, что
// финальный статус будет FAILED, false — DEAD_LETTER.
type Failure struct {
	TaskID    string
	Error     string
	Retryable bool
}

func (Failure) sealed() {}
