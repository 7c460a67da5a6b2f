package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// supplier-mock stands in for Printful, EPROLO and Zendrop in local
// development. It accepts each partner's order shape, remembers what it
// received, and can fire the package_shipped webhook back at the storefront
// on demand.

type receivedOrder struct {
	Supplier   string      `json:"supplier"`
	ExternalID string      `json:"external_id"`
	OrderID    string      `json:"order_id"`
	Payload    interface{} `json:"payload"`
	ReceivedAt time.Time   `json:"received_at"`
}

type mockStore struct {
	mutex  sync.RWMutex
	orders map[string]*receivedOrder // keyed by the storefront's order number
	nextID int
}

func newMockStore() *mockStore {
	return &mockStore{orders: make(map[string]*receivedOrder), nextID: 1000}
}

func (s *mockStore) add(supplier, externalID string, payload interface{}) *receivedOrder {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.nextID++
	order := &receivedOrder{
		Supplier:   supplier,
		ExternalID: externalID,
		OrderID:    fmt.Sprintf("%d", s.nextID),
		Payload:    payload,
		ReceivedAt: time.Now(),
	}
	s.orders[externalID] = order
	return order
}

func (s *mockStore) get(externalID string) (*receivedOrder, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	o, ok := s.orders[externalID]
	return o, ok
}

func (s *mockStore) list() []*receivedOrder {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	orders := make([]*receivedOrder, 0, len(s.orders))
	for _, o := range s.orders {
		orders = append(orders, o)
	}
	return orders
}

type mockServer struct {
	store      *mockStore
	webhookURL string
	logger     *logrus.Logger
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	port := getEnv("PORT", "9090")
	webhookURL := getEnv("STOREFRONT_WEBHOOK_URL", "http://localhost:8080/api/webhooks/supplier")

	server := &mockServer{
		store:      newMockStore(),
		webhookURL: webhookURL,
		logger:     logger,
	}

	router := mux.NewRouter()
	// Printful
	router.HandleFunc("/orders", server.printfulCreate).Methods("POST")
	// EPROLO
	router.HandleFunc("/api/v1/order/create", server.eproloCreate).Methods("POST")
	// Zendrop
	router.HandleFunc("/v1/orders", server.zendropCreate).Methods("POST")

	// Inspection and shipment simulation
	router.HandleFunc("/mock/orders", server.listOrders).Methods("GET")
	router.HandleFunc("/mock/ship/{external_id}", server.ship).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":        port,
			"webhook_url": webhookURL,
		}).Info("Supplier mock started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down supplier mock...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

func (s *mockServer) printfulCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ExternalID string `json:"external_id"`
	}
	raw := decodeInto(w, r, &payload)
	if raw == nil {
		return
	}

	order := s.store.add("Printful", payload.ExternalID, raw)
	s.logger.WithFields(logrus.Fields{
		"supplier":    "Printful",
		"external_id": payload.ExternalID,
		"order_id":    order.OrderID,
	}).Info("Mock order accepted")

	id, _ := strconv.ParseInt(order.OrderID, 10, 64)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result": map[string]interface{}{"id": id},
	})
}

func (s *mockServer) eproloCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrderNum string `json:"orderNum"`
	}
	raw := decodeInto(w, r, &payload)
	if raw == nil {
		return
	}

	order := s.store.add("EPROLO", payload.OrderNum, raw)
	s.logger.WithFields(logrus.Fields{
		"supplier":    "EPROLO",
		"external_id": payload.OrderNum,
		"order_id":    order.OrderID,
	}).Info("Mock order accepted")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code": 200,
		"data": map[string]interface{}{"orderId": order.OrderID},
	})
}

func (s *mockServer) zendropCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		OrderNumber string `json:"order_number"`
	}
	raw := decodeInto(w, r, &payload)
	if raw == nil {
		return
	}

	order := s.store.add("Zendrop", payload.OrderNumber, raw)
	s.logger.WithFields(logrus.Fields{
		"supplier":    "Zendrop",
		"external_id": payload.OrderNumber,
		"order_id":    order.OrderID,
	}).Info("Mock order accepted")

	writeJSON(w, http.StatusOK, map[string]string{"order_id": order.OrderID})
}

func (s *mockServer) listOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.store.list()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// ship fires the package_shipped webhook for a previously received order,
// the way a real supplier would once the parcel leaves the warehouse.
func (s *mockServer) ship(w http.ResponseWriter, r *http.Request) {
	externalID := mux.Vars(r)["external_id"]
	if _, ok := s.store.get(externalID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		return
	}

	tracking := fmt.Sprintf("9400%d", time.Now().UnixNano()%1e10)
	event := map[string]interface{}{
		"type": "package_shipped",
		"data": map[string]interface{}{
			"order": map[string]string{"external_id": externalID},
			"shipment": map[string]string{
				"tracking_number": tracking,
				"tracking_url":    "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + tracking,
				"carrier":         "USPS",
			},
		},
	}
	body, _ := json.Marshal(event)

	resp, err := http.Post(s.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		s.logger.WithError(err).Error("Failed to deliver shipment webhook")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "webhook delivery failed"})
		return
	}
	defer resp.Body.Close()

	s.logger.WithFields(logrus.Fields{
		"external_id":     externalID,
		"tracking_number": tracking,
		"webhook_status":  resp.StatusCode,
	}).Info("Shipment webhook delivered")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"shipped":         true,
		"tracking_number": tracking,
		"webhook_status":  resp.StatusCode,
	})
}

// decodeInto reads the body once, decodes the interesting fields into dst
// and returns the raw payload for storage. Returns nil after writing an
// error response.
func decodeInto(w http.ResponseWriter, r *http.Request, dst interface{}) interface{} {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return nil
	}
	var payload interface{}
	json.Unmarshal(raw, &payload)
	return payload
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
