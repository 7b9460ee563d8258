package books

type ListBooksQuery struct {
	Limit     int     `query:"limit" json:"limit,omitempty" default:"25" validate:"min=1,max=100"`
	Offset    int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	LibraryID *int    `query:"library_id" json:"library_id,omitempty" validate:"omitempty,min=1"`
	Deleted   bool    `query:"deleted" json:"deleted,omitempty"`
	Title     *string `query:"title" json:"title,omitempty" mod:"trim" validate:"omitempty,max=200"`
	Fileless  bool    `query:"fileless" json:"fileless,omitempty"`
}
