package http

import (
	"errors"
	"net/http"

	"ordem/internal/auth"
	"ordem/internal/billing"
	"ordem/internal/core"
	"ordem/internal/files"
	"ordem/internal/log"
	"ordem/internal/messaging"
	"ordem/internal/resource"
	"ordem/internal/services"
	"ordem/internal/storage"
)

// userError maps a domain error onto a status and a message fit for a toast.
// Unknown errors are internal.
func userError(err error) (int, string) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound, "Registro não encontrado"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "Registro em conflito, recarregue a página"
	case errors.Is(err, resource.ErrValidation):
		return http.StatusUnprocessableEntity, "Verifique os campos destacados"
	case errors.Is(err, messaging.ErrNotParticipant):
		return http.StatusForbidden, "Você não participa desta conversa"
	case errors.Is(err, messaging.ErrSelfConversation):
		return http.StatusUnprocessableEntity, "Não é possível conversar consigo mesmo"
	case errors.Is(err, messaging.ErrNoParticipants):
		return http.StatusUnprocessableEntity, "Escolha ao menos um participante"
	case errors.Is(err, messaging.ErrRouterStopped):
		return http.StatusServiceUnavailable, "Serviço de mensagens indisponível"
	case errors.Is(err, core.ErrEmptyMessage):
		return http.StatusUnprocessableEntity, "A mensagem está vazia"
	case errors.Is(err, core.ErrMessageTooLong):
		return http.StatusUnprocessableEntity, "A mensagem é longa demais"
	case errors.Is(err, core.ErrEmptyPost):
		return http.StatusUnprocessableEntity, "Escreva algo antes de publicar"
	case errors.Is(err, core.ErrPostTooLong):
		return http.StatusUnprocessableEntity, "A publicação é longa demais"
	case errors.Is(err, core.ErrFollowSelf):
		return http.StatusUnprocessableEntity, "Você não pode seguir a si mesmo"
	case errors.Is(err, files.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "Arquivo grande demais"
	case errors.Is(err, files.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, "Formato de imagem não suportado"
	case errors.Is(err, files.ErrEmpty):
		return http.StatusUnprocessableEntity, "Arquivo vazio"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "E-mail ou senha inválidos"
	case errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict, "Este e-mail já está cadastrado"
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "A senha precisa ter ao menos 8 caracteres"
	case errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusUnprocessableEntity, "A senha é longa demais"
	case errors.Is(err, auth.ErrEmptyName), errors.Is(err, services.ErrDisplayNameRequired):
		return http.StatusUnprocessableEntity, "Informe seu nome"
	case errors.Is(err, core.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, "E-mail inválido"
	case errors.Is(err, services.ErrProfileTooLong):
		return http.StatusUnprocessableEntity, "Nome ou bio longos demais"
	case errors.Is(err, services.ErrSelfDemotion):
		return http.StatusUnprocessableEntity, "Você não pode remover seu próprio acesso de administrador"
	case errors.Is(err, billing.ErrPlanInactive):
		return http.StatusUnprocessableEntity, "Este plano não está disponível"
	case errors.Is(err, billing.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Informe uma quantidade de créditos diferente de zero"
	case errors.Is(err, billing.ErrInvalidDays):
		return http.StatusUnprocessableEntity, "Informe um número de dias positivo"
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidDay), errors.Is(err, core.ErrInvalidMonth):
		return http.StatusUnprocessableEntity, "Data inválida"
	case errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "Valor inválido"
	case errors.Is(err, core.ErrInvalidCategory):
		return http.StatusUnprocessableEntity, "Categoria inválida"
	case errors.Is(err, core.ErrEmptyDescription), errors.Is(err, core.ErrEmptyField):
		return http.StatusUnprocessableEntity, "Preencha os campos obrigatórios"
	case errors.Is(err, core.ErrTooLong):
		return http.StatusUnprocessableEntity, "Texto longo demais"
	}
	return http.StatusInternalServerError, "Erro interno, tente novamente"
}

// fail answers an HTMX request with an error toast and logs internal errors.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, msg := userError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op, log.FieldError, err)
	}
	ErrorToast(status, msg).Write(w)
}

// failJSON is fail for the JSON API.
func (s *Server) failJSON(w http.ResponseWriter, r *http.Request, err error, op string) {
	status, msg := userError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "API request failed",
			log.FieldOperation, op, log.FieldError, err)
	}
	writeJSONError(w, status, msg)
}
