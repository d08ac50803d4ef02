package book

import (
	"container/heap"
	"container/list"
	"sort"
	"time"

	"github.com/DeeptradeProtocol/sui-deepbook-wrapper-package-sub001/services/router/internal/domain"
)

type order struct {
	id            string
	clientOrderID uint64
	bm            domain.BalanceManager
	isBid         bool
	price         uint64
	quantity      uint64
	filled        uint64
	// escrow is the input coin still locked for the unfilled quantity.
	escrow    uint64
	expire    uint64
	createdAt time.Time
}

func (o *order) remaining() uint64 {
	return o.quantity - o.filled
}

func (o *order) view() domain.Order {
	return domain.Order{
		OrderID:          o.id,
		BalanceManagerID: o.bm.ID(),
		Price:            o.price,
		Quantity:         o.quantity,
		FilledQuantity:   o.filled,
		IsBid:            o.isBid,
		ExpireTimestamp:  o.expire,
	}
}

// OrderBook is one pool's resting orders with price-time priority. It is not
// safe for concurrent use; Engine serializes access.
type OrderBook struct {
	bids   *bookSide
	asks   *bookSide
	orders map[string]*orderRef
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		bids:   newBookSide(true),
		asks:   newBookSide(false),
		orders: make(map[string]*orderRef),
	}
}

func (ob *OrderBook) Depth(isBid bool) int {
	count := 0
	for _, ref := range ob.orders {
		if ref.order.isBid == isBid {
			count++
		}
	}
	return count
}

// BestBid returns the highest bid price.
func (ob *OrderBook) BestBid() (uint64, bool) {
	level := ob.bids.best()
	if level == nil {
		return 0, false
	}
	return level.price, true
}

// BestAsk returns the lowest ask price.
func (ob *OrderBook) BestAsk() (uint64, bool) {
	level := ob.asks.best()
	if level == nil {
		return 0, false
	}
	return level.price, true
}

func (ob *OrderBook) get(orderID string) (*order, bool) {
	ref, ok := ob.orders[orderID]
	if !ok {
		return nil, false
	}
	return ref.order, true
}

func (ob *OrderBook) add(o *order) {
	if _, exists := ob.orders[o.id]; exists || o.remaining() == 0 {
		return
	}
	side := ob.asks
	if o.isBid {
		side = ob.bids
	}
	ob.orders[o.id] = side.add(o)
}

func (ob *OrderBook) remove(orderID string) bool {
	ref, ok := ob.orders[orderID]
	if !ok {
		return false
	}
	ref.sideBook.remove(ref)
	delete(ob.orders, orderID)
	return true
}

// ordersOf lists resting order ids for one balance manager.
func (ob *OrderBook) ordersOf(balanceManagerID string) []string {
	var out []string
	for id, ref := range ob.orders {
		if ref.order.bm.ID() == balanceManagerID {
			out = append(out, id)
		}
	}
	return out
}

type orderRef struct {
	order    *order
	element  *list.Element
	level    *priceLevel
	sideBook *bookSide
}

type priceLevel struct {
	price  uint64
	orders *list.List
	index  int
}

type bookSide struct {
	levels map[uint64]*priceLevel
	heap   priceHeap
}

func newBookSide(isBid bool) *bookSide {
	side := &bookSide{
		levels: make(map[uint64]*priceLevel),
		heap:   priceHeap{isMax: isBid},
	}
	heap.Init(&side.heap)
	return side
}

func (s *bookSide) add(o *order) *orderRef {
	level := s.levels[o.price]
	if level == nil {
		level = &priceLevel{price: o.price, orders: list.New()}
		heap.Push(&s.heap, level)
		s.levels[o.price] = level
	}
	element := level.orders.PushBack(o)
	return &orderRef{order: o, element: element, level: level, sideBook: s}
}

func (s *bookSide) remove(ref *orderRef) {
	if ref == nil || ref.level == nil || ref.element == nil {
		return
	}
	ref.level.orders.Remove(ref.element)
	if ref.level.orders.Len() == 0 {
		heap.Remove(&s.heap, ref.level.index)
		delete(s.levels, ref.level.price)
	}
}

func (s *bookSide) best() *priceLevel {
	if s.heap.Len() == 0 {
		return nil
	}
	return s.heap.levels[0]
}

// sorted returns levels from best to worst.
func (s *bookSide) sorted() []*priceLevel {
	levels := make([]*priceLevel, len(s.heap.levels))
	copy(levels, s.heap.levels)
	sort.Slice(levels, func(i, j int) bool {
		if s.heap.isMax {
			return levels[i].price > levels[j].price
		}
		return levels[i].price < levels[j].price
	})
	return levels
}

type priceHeap struct {
	levels []*priceLevel
	isMax  bool
}

func (h priceHeap) Len() int { return len(h.levels) }

func (h priceHeap) Less(i, j int) bool {
	if h.isMax {
		return h.levels[i].price > h.levels[j].price
	}
	return h.levels[i].price < h.levels[j].price
}

func (h priceHeap) Swap(i, j int) {
	h.levels[i], h.levels[j] = h.levels[j], h.levels[i]
	h.levels[i].index = i
	h.levels[j].index = j
}

func (h *priceHeap) Push(x interface{}) {
	level := x.(*priceLevel)
	level.index = len(h.levels)
	h.levels = append(h.levels, level)
}

func (h *priceHeap) Pop() interface{} {
	old := h.levels
	n := len(old)
	item := old[n-1]
	item.index = -1
	h.levels = old[:n-1]
	return item
}
