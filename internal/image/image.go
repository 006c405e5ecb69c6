// Package image implements the image lifecycle: upload, replace and delete,
// on top of a storage backend.
package image

import (
	"errors"
	"io"
)

// Image is the location descriptor returned to callers. Callers are the
// system of record for which images exist.
type Image struct {
	URL      string `json:"imageUrl" example:"/uploads/1691763771123-foto.png"`
	PublicID string `json:"publicId,omitempty" example:"uploads/5f0c3a1e-6d0b-4bb4-9a53-5a1a4c1f4f0e.png"`
}

// Upload is a single file payload submitted by a caller.
type Upload struct {
	Name        string
	Body        io.Reader
	Size        int64
	ContentType string
}

// Variant describes how a storage backend is addressed on the wire and how
// Replace orders its steps.
type Variant struct {
	Name string
	// OldRefField is the multipart field carrying the superseded image on PUT.
	OldRefField string
	// RefField is the JSON key carrying the image to delete on DELETE.
	RefField string
	// CleanupFirst deletes the superseded image before storing the new one.
	// When false the new image is stored first and the old one is deleted
	// only after that succeeded.
	CleanupFirst bool
}

var (
	// DiskVariant addresses images by public path.
	DiskVariant = Variant{
		Name:         "disk",
		OldRefField:  "oldImage",
		RefField:     "imagePath",
		CleanupFirst: true,
	}
	// RemoteVariant addresses images by store-assigned object identifier.
	RemoteVariant = Variant{
		Name:        "remote",
		OldRefField: "oldImageId",
		RefField:    "publicId",
	}
)

var (
	// ErrNoFile is returned when a request carries no file payload.
	ErrNoFile = errors.New("no file uploaded")
	// ErrNoReference is returned when a delete names no image.
	ErrNoReference = errors.New("no image reference given")
	// ErrTooLarge is returned when the payload exceeds the upload limit.
	ErrTooLarge = errors.New("file exceeds upload limit")
	// ErrUnsupportedType is returned when the payload is not an accepted image type.
	ErrUnsupportedType = errors.New("unsupported media type")
)

// Messages returned to clients. The wording matches what existing clients of
// the service already display.
const (
	msgNoFile          = "Nenhum arquivo enviado"
	msgNoReference     = "Nenhuma imagem informada"
	msgNotFound        = "Imagem não encontrada"
	msgDeleted         = "Imagem excluída com sucesso"
	msgCreateFailed    = "Erro ao enviar imagem"
	msgReplaceFailed   = "Erro ao atualizar imagem"
	msgDeleteFailed    = "Erro ao excluir imagem"
	msgOpenFailed      = "Erro ao carregar imagem"
	msgTooLarge        = "Arquivo excede o tamanho máximo permitido"
	msgUnsupportedType = "Tipo de arquivo não suportado"
	msgBadBody         = "Corpo da requisição inválido"
)
