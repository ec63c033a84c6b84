package report

import (
	"fmt"

	"receiving-backend/internal/receiving"

	"github.com/gofiber/fiber/v2"
)

// GET /api/receiving/session/report.xlsx
func SessionReportHandler(m *receiving.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := receiving.PickerFrom(c)
		if err != nil {
			return err
		}
		s, err := m.Get(p)
		if err != nil {
			return receiving.HTTPError(c, err)
		}

		v := s.View()
		f, err := Build(v)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el reporte")
		}
		defer f.Close()

		name := "recepcion"
		if len(v.Orders) > 0 {
			name += "-" + v.Orders[0].Folio
		}
		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.xlsx"`, name))
		return f.Write(c.Response().BodyWriter())
	}
}
