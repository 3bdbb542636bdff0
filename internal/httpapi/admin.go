package httpapi

import (
	"encoding/json"
	"net/http"
)

// handleGetStock implements GET /inventory/{productID}.
func (s *Server) handleGetStock(w http.ResponseWriter, r *http.Request) {
	product := r.PathValue("productID")
	writeJSON(w, http.StatusOK, map[string]int{product: s.inventory.GetStock(product)})
}

// handleSetStock implements PUT /inventory/{productID} with body
// {"quantity": n}.
func (s *Server) handleSetStock(w http.ResponseWriter, r *http.Request) {
	product := r.PathValue("productID")
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.inventory.SetStock(product, body.Quantity)
	w.WriteHeader(http.StatusNoContent)
}

// handleBulkSetStock implements POST /inventory/bulk with body
// {"productId": quantity, ...}.
func (s *Server) handleBulkSetStock(w http.ResponseWriter, r *http.Request) {
	var body map[string]int
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.inventory.BulkSet(body)
	w.WriteHeader(http.StatusNoContent)
}

// handleSetFlashSale implements PUT /inventory/flash-sale with body
// {"products": ["p1", "p2"]}, atomically replacing the flash-sale set.
func (s *Server) handleSetFlashSale(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Products []string `json:"products"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.inventory.SetFlashSaleProducts(body.Products)
	w.WriteHeader(http.StatusNoContent)
}
