package websocket

import (
	"bytes"
	"log"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradeguard/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул JSON буферов: убирает аллокации при каждом Broadcast
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный broadcast событий пайплайна подключенным клиентам:
// дашборду и bot-lifecycle менеджеру. Последний слушает breakerTrip
// и ставит ботов на паузу - поэтому хаб реализует pipeline.TripSignaler.
//
// Функции:
// - Регистрация / отмена регистрации клиентов
// - Broadcast сообщений всем активным клиентам
// - Очистка медленных и отключенных соединений
// - Потокобезопасная работа с клиентами (sync.RWMutex)
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять события: hub.SignalBreakerTripped(state)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
//
// Отправка клиентам идёт без удержания lock'а: под коротким RLock
// копируется список, медленные клиенты удаляются после под Write Lock,
// чтобы broadcast не блокировал register/unregister.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("Client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("Client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - помечаем для удаления
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				log.Printf("Removed %d slow clients. Total clients: %d", len(toRemove), len(h.clients))
			}
		}
	}
}

// Broadcast сериализует и рассылает сообщение всем клиентам
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		log.Printf("Error marshaling broadcast message: %v", err)
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет trailing newline
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Буфер вернётся в пул, данные копируем
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	h.broadcast <- msgCopy
}

// SignalBreakerTripped рассылает событие срабатывания breaker'а
func (h *Hub) SignalBreakerTripped(state *models.CircuitBreakerState) {
	h.Broadcast(NewBreakerTripMessage(state))
}

// SignalBreakerReset рассылает событие сброса breaker'а
func (h *Hub) SignalBreakerReset(state *models.CircuitBreakerState) {
	h.Broadcast(NewBreakerResetMessage(state))
}

// BroadcastOrderAdmitted отправляет событие допуска ордера
func (h *Hub) BroadcastOrderAdmitted(orderID, botID string) {
	h.Broadcast(&OrderEventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeOrderAdmitted, Timestamp: time.Now().UTC()},
		OrderID:     orderID,
		BotID:       botID,
	})
}

// BroadcastOrderRejected отправляет событие отклонения ордера
func (h *Hub) BroadcastOrderRejected(botID, gate, reason string, details map[string]interface{}) {
	h.Broadcast(&OrderEventMessage{
		BaseMessage: BaseMessage{Type: MessageTypeOrderRejected, Timestamp: time.Now().UTC()},
		BotID:       botID,
		Gate:        gate,
		Reason:      reason,
		Details:     details,
	})
}

// BroadcastFillRecorded отправляет событие записи fill'а
func (h *Hub) BroadcastFillRecorded(orderID, fillID, exchange, symbol string, slippageBps, actualFeeBps float64) {
	h.Broadcast(&FillEventMessage{
		BaseMessage:  BaseMessage{Type: MessageTypeFillRecorded, Timestamp: time.Now().UTC()},
		OrderID:      orderID,
		FillID:       fillID,
		Exchange:     exchange,
		Symbol:       symbol,
		SlippageBps:  slippageBps,
		ActualFeeBps: actualFeeBps,
	})
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
