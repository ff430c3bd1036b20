package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow - rate limiter со скользящим окном, ключированный по строке.
//
// Алгоритм:
// - Для каждого ключа хранится упорядоченный список timestamp'ов отправок
// - Перед подсчётом устаревшие записи (старше окна) вырезаются
// - Если оставшихся записей >= limit, запрос отклоняется и timestamp НЕ добавляется
// - При успехе текущий timestamp добавляется в конец списка
//
// Подрезка выполняется и при отказе, чтобы устаревшее состояние не
// накапливалось неограниченно.
//
// Инвариант: список timestamp'ов ключа всегда строго упорядочен по времени
// и ограничен окном.
//
// Состояние in-memory: живёт столько же, сколько процесс. Потеря при
// перезапуске допустима - окно ограничивает только краткосрочный burst,
// долгосрочные лимиты считаются из леджера.
//
// Использование:
//
//	w := NewSlidingWindow()
//	count, ok := w.Allow("binance:user_123", 10, 10*time.Second)
//	if !ok { ... } // отказ: count уже на лимите
type SlidingWindow struct {
	mu   sync.RWMutex
	keys map[string]*windowEntry
}

// windowEntry - состояние одного ключа со своим мьютексом.
// Per-key блокировка: несвязанные ключи не конкурируют за один lock.
type windowEntry struct {
	mu         sync.Mutex
	timestamps []time.Time
}

// NewSlidingWindow создаёт новый limiter
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		keys: make(map[string]*windowEntry),
	}
}

// entry возвращает состояние ключа, создавая его при необходимости
func (w *SlidingWindow) entry(key string) *windowEntry {
	w.mu.RLock()
	e, ok := w.keys[key]
	w.mu.RUnlock()
	if ok {
		return e
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Повторная проверка: другой вызов мог создать entry между locks
	if e, ok = w.keys[key]; ok {
		return e
	}
	e = &windowEntry{}
	w.keys[key] = e
	return e
}

// Allow проверяет и занимает слот в окне для ключа.
//
// Последовательность prune-count-append атомарна относительно
// конкурентных вызовов с тем же ключом: два запроса не могут оба
// увидеть "есть место", когда остался один слот.
//
// Возвращает:
//   - count: количество отправок в окне ДО текущей попытки (после подрезки)
//   - ok: true если слот занят (timestamp добавлен), false при отказе
func (w *SlidingWindow) Allow(key string, limit int, window time.Duration) (count int, ok bool) {
	return w.AllowAt(key, limit, window, time.Now().UTC())
}

// AllowAt - вариант Allow с явным временем (для тестов)
func (w *SlidingWindow) AllowAt(key string, limit int, window time.Duration, now time.Time) (count int, ok bool) {
	e := w.entry(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.prune(now.Add(-window))

	count = len(e.timestamps)
	if count >= limit {
		// Отказ: новый timestamp не добавляем, слот не расходуется
		return count, false
	}

	e.timestamps = append(e.timestamps, now)
	return count, true
}

// prune вырезает записи старше cutoff. Вызывается под lock'ом entry.
// Timestamps упорядочены, поэтому достаточно найти первую живую запись.
func (e *windowEntry) prune(cutoff time.Time) {
	i := 0
	for i < len(e.timestamps) && !e.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		e.timestamps = append(e.timestamps[:0], e.timestamps[i:]...)
	}
}

// Count возвращает количество живых записей в окне ключа (с подрезкой)
func (w *SlidingWindow) Count(key string, window time.Duration) int {
	return w.CountAt(key, window, time.Now().UTC())
}

// CountAt - вариант Count с явным временем (для тестов)
func (w *SlidingWindow) CountAt(key string, window time.Duration, now time.Time) int {
	w.mu.RLock()
	e, ok := w.keys[key]
	w.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now.Add(-window))
	return len(e.timestamps)
}

// Seed заполняет окно ключа готовыми timestamp'ами (для тестов)
func (w *SlidingWindow) Seed(key string, timestamps []time.Time) {
	e := w.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timestamps = append([]time.Time(nil), timestamps...)
}

// Reset очищает состояние ключа
func (w *SlidingWindow) Reset(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.keys, key)
}
