package domain

// Campos de metadata de archivos subidos.
const (
	FieldFilename = "_filename"
	FieldFilepath = "_filepath"
	FieldFilesize = "_filesize"
	FieldFiletype = "_filetype"
)

// FileMeta describe un archivo almacenado en el archive.
type FileMeta struct {
	ID       string `json:"_id"`
	Filename string `json:"_filename"`
	Filepath string `json:"_filepath"`
	Filesize int64  `json:"_filesize"`
	Filetype string `json:"_filetype"`
}

// Document convierte la metadata al documento persistido.
func (m FileMeta) Document() Document {
	return Document{
		FieldFilename: m.Filename,
		FieldFilepath: m.Filepath,
		FieldFilesize: m.Filesize,
		FieldFiletype: m.Filetype,
	}
}

// FileMetaFromDocument reconstruye la metadata a partir de un documento.
func FileMetaFromDocument(d Document) FileMeta {
	meta := FileMeta{
		ID:       d.ID(),
		Filename: d.String(FieldFilename),
		Filepath: d.String(FieldFilepath),
		Filetype: d.String(FieldFiletype),
	}
	switch v := d[FieldFilesize].(type) {
	case int64:
		meta.Filesize = v
	case int32:
		meta.Filesize = int64(v)
	case int:
		meta.Filesize = int64(v)
	case float64:
		meta.Filesize = int64(v)
	}
	return meta
}
