package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) handleRoot(c echo.Context) error {
	return c.String(http.StatusOK, "It's running!")
}

func (s *Server) handleLanguages(c echo.Context) error {
	return c.JSON(http.StatusOK, s.languages)
}

func (s *Server) handleTranslate(c echo.Context) error {
	var body translateRequest
	if err := decodeRequestBody(c, &body); err != nil {
		return err
	}

	req, err := body.normalize()
	if err != nil {
		return err
	}

	result, err := s.translator.Translate(c.Request().Context(), req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}
