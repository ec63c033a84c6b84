package receiving

import (
	"errors"
	"strconv"
	"strings"

	"receiving-backend/internal/auth"
	"receiving-backend/internal/provider"

	"github.com/gofiber/fiber/v2"
)

// PickerFrom builds the picker context from the JWT locals.
func PickerFrom(c *fiber.Ctx) (PickerContext, error) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok || userID == 0 {
		return PickerContext{}, fiber.NewError(fiber.StatusUnauthorized, "Usuario no identificado")
	}
	tenant, _ := c.Locals(auth.CtxTenantKey).(string)
	if tenant == "" {
		return PickerContext{}, fiber.NewError(fiber.StatusForbidden, "El usuario no pertenece a ninguna base")
	}
	warehouse, _ := c.Locals(auth.CtxWarehouseKey).(string)
	return PickerContext{
		Tenant:    tenant,
		Warehouse: warehouse,
		Picker:    strconv.FormatUint(uint64(userID), 10),
	}, nil
}

// HTTPError maps engine errors to fiber errors. Commit errors are written
// directly because they carry the folios already issued.
func HTTPError(c *fiber.Ctx, err error) error {
	var (
		verr *ValidationError
		nerr *NotFoundError
		cerr *CommitError
		terr *TransientError
		ferr *fiber.Error
	)
	switch {
	case errors.As(err, &ferr):
		return ferr
	case errors.As(err, &cerr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":              cerr.Error(),
			"order_id":           cerr.OrderID,
			"receipt_folios":     cerr.ReceiptFolios,
			"progress_preserved": true,
		})
	case errors.As(err, &verr):
		return fiber.NewError(fiber.StatusUnprocessableEntity, verr.Error())
	case errors.As(err, &nerr):
		return fiber.NewError(fiber.StatusNotFound, nerr.Error())
	case errors.Is(err, ErrNoSession), errors.Is(err, ErrUnknownSelection), errors.Is(err, ErrNoPendingCommit):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateOrder), errors.Is(err, ErrBoxOccupied),
		errors.Is(err, ErrSessionActive), errors.Is(err, ErrNotComplete), errors.Is(err, ErrAssignRejected),
		errors.Is(err, ErrCommitPending):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrSessionEnded):
		return fiber.NewError(fiber.StatusGone, err.Error())
	case errors.As(err, &terr):
		return fiber.NewError(fiber.StatusServiceUnavailable, "El servidor de pedidos no respondió, intenta de nuevo")
	default:
		return err
	}
}

type StartSessionRequest struct {
	Folio string `json:"folio"`
}

// POST /api/receiving/sessions
// Folio naming several orders answers 200 with the candidates; a single
// order starts the session.
func StartSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PickerFrom(c)
		if err != nil {
			return err
		}
		var body StartSessionRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		body.Folio = strings.TrimSpace(body.Folio)

		s, res, err := m.Start(c.UserContext(), p, body.Folio)
		if err != nil {
			return HTTPError(c, err)
		}
		if s == nil {
			return c.JSON(fiber.Map{"orders": res.Orders})
		}
		return c.Status(fiber.StatusCreated).JSON(s.View())
	}
}

// POST /api/receiving/sessions/restore
func RestoreSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PickerFrom(c)
		if err != nil {
			return err
		}
		s, err := m.Restore(c.UserContext(), p)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(s.View())
	}
}

// GET /api/receiving/session
func GetSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"session":        s.View(),
			"pending_commit": m.HasPendingCommit(s.picker),
		})
	}
}

func current(c *fiber.Ctx, m *Manager) (*Session, error) {
	p, err := PickerFrom(c)
	if err != nil {
		return nil, err
	}
	s, err := m.Get(p)
	if err != nil {
		return nil, HTTPError(c, err)
	}
	return s, nil
}

type CombineRequest struct {
	Folio string `json:"folio"`
}

// POST /api/receiving/session/orders
func CombineOrderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body CombineRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		body.Folio = strings.TrimSpace(body.Folio)
		if body.Folio == "" {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "El folio es obligatorio")
		}

		res, err := s.Combine(c.UserContext(), body.Folio)
		if err != nil {
			return HTTPError(c, err)
		}
		if res.Header == nil {
			return c.JSON(fiber.Map{"orders": res.Orders})
		}
		return c.JSON(s.View())
	}
}

// DELETE /api/receiving/session/orders/:id
func RemoveOrderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		ended, err := s.RemoveOrder(c.Params("id"))
		if err != nil {
			return HTTPError(c, err)
		}
		if ended {
			return c.JSON(fiber.Map{"session_ended": true})
		}
		return c.JSON(s.View())
	}
}

type ScanRequest struct {
	Code  string `json:"code"`
	Order string `json:"order_id"`
}

// POST /api/receiving/session/scan
func ScanHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body ScanRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}

		res, err := s.Scan(c.UserContext(), body.Code, body.Order)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

type QuantityRequest struct {
	Quantity int    `json:"quantity"`
	Order    string `json:"order_id"`
}

type AdjustRequest struct {
	Delta int    `json:"delta"`
	Order string `json:"order_id"`
}

// PUT /api/receiving/session/lines/:article/quantity
func SetQuantityHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body QuantityRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		res, err := s.SetQuantity(c.Params("article"), body.Quantity, body.Order)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

// POST /api/receiving/session/lines/:article/adjust
func AdjustHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body AdjustRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		res, err := s.Adjust(c.Params("article"), body.Delta, body.Order)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

// POST /api/receiving/session/lines/:article/fill
func FillHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		res, err := s.Fill(c.Params("article"), c.Query("order_id"))
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

func lineKey(c *fiber.Ctx) LineKey {
	return LineKey{OrderID: c.Params("order"), ArticleID: c.Params("article")}
}

// PUT /api/receiving/session/lines/:order/:article/devolution
func SetDevolutionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body QuantityRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		key := lineKey(c)
		if err := s.SetDevolution(key, body.Quantity); err != nil {
			return HTTPError(c, err)
		}
		line, _ := s.tracker.Line(key)
		return c.JSON(line)
	}
}

type BackorderRequest struct {
	Backorder bool `json:"backorder"`
}

// PUT /api/receiving/session/lines/:order/:article/backorder
func SetBackorderHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body BackorderRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		key := lineKey(c)
		if err := s.SetBackorder(key, body.Backorder); err != nil {
			return HTTPError(c, err)
		}
		line, _ := s.tracker.Line(key)
		return c.JSON(line)
	}
}

type IncidentRequest struct {
	Kind IncidentKind `json:"kind"`
	Note string       `json:"note"`
}

// POST /api/receiving/session/lines/:order/:article/incidents
func AddIncidentHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body IncidentRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		inc, err := s.AddIncident(lineKey(c), body.Kind, strings.TrimSpace(body.Note))
		if err != nil {
			return HTTPError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(inc)
	}
}

// POST /api/receiving/session/invoice
func AttachInvoiceHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var items []provider.LineItem
		if err := c.BodyParser(&items); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}
		res, err := s.AttachInvoice(c.UserContext(), items)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

type ChooseBoxRequest struct {
	SelectionID string `json:"selection_id"`
	Box         string `json:"box"`
	Decline     bool   `json:"decline"`
}

// POST /api/receiving/session/boxes/choose
// decline=true sends the held units to the receiving line instead.
func ChooseBoxHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := current(c, m)
		if err != nil {
			return err
		}
		var body ChooseBoxRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
		}

		if body.Decline {
			res, err := s.DeclineSelection(body.SelectionID)
			if err != nil {
				return HTTPError(c, err)
			}
			return c.JSON(fiber.Map{"allocation": res})
		}

		out, err := s.ChooseBox(c.UserContext(), body.SelectionID, strings.TrimSpace(body.Box))
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(fiber.Map{"reservation": out})
	}
}

type CommitRequest struct {
	Mode CommitMode `json:"mode"`
}

// POST /api/receiving/session/commit
func CommitHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PickerFrom(c)
		if err != nil {
			return err
		}
		body := CommitRequest{Mode: CommitRequireComplete}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de la solicitud inválido")
			}
		}

		res, err := m.Commit(c.UserContext(), p, body.Mode)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

// POST /api/receiving/session/commit/retry
func RetryCommitHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PickerFrom(c)
		if err != nil {
			return err
		}
		res, err := m.Retry(c.UserContext(), p)
		if err != nil {
			return HTTPError(c, err)
		}
		return c.JSON(res)
	}
}

// DELETE /api/receiving/session
// Saves the draft and leaves; the session can be restored later.
func CloseSessionHandler(m *Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := PickerFrom(c)
		if err != nil {
			return err
		}
		if err := m.Close(p); err != nil {
			return HTTPError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
