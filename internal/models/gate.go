package models

// GateResult - результат одной проверки гейта.
//
// Эфемерный: отдельно не сохраняется, складывается в ответ пайплайна
// или в отклонение. При Passed=false Reason обязателен, Details содержит
// числовые данные, по которым принято решение (разбивка по bps, счётчики),
// чтобы оператор мог восстановить причину без запросов к другим системам.
type GateResult struct {
	Passed  bool                   `json:"passed"`
	Gate    string                 `json:"gate"`
	Reason  string                 `json:"reason,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PassGate возвращает успешный результат гейта
func PassGate(gate string, details map[string]interface{}) GateResult {
	return GateResult{Passed: true, Gate: gate, Details: details}
}

// FailGate возвращает отказ гейта с причиной
func FailGate(gate, reason string, details map[string]interface{}) GateResult {
	return GateResult{Passed: false, Gate: gate, Reason: reason, Details: details}
}
