package services

import (
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/immatt-0/lenbrary/internal/models"
	"github.com/immatt-0/lenbrary/internal/repositories"
)

// CatalogService owns the book catalogue: librarian CRUD plus the public
// list/search surface. Stock and inventory edits keep 0 <= stock <= inventory.
type CatalogService struct {
	db            *gorm.DB
	books         repositories.BookRepository
	notifications repositories.NotificationRepository
}

func NewCatalogService(db *gorm.DB, books repositories.BookRepository, notifications repositories.NotificationRepository) *CatalogService {
	return &CatalogService{db: db, books: books, notifications: notifications}
}

// BookInput carries the writable fields of a book.
type BookInput struct {
	Name            string `json:"name" binding:"required"`
	Author          string `json:"author" binding:"required"`
	Inventory       int    `json:"inventory" binding:"min=0"`
	Stock           int    `json:"stock" binding:"min=0"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	PublicationYear *int   `json:"publication_year"`
	ThumbnailURL    string `json:"thumbnail_url"`
}

func (in *BookInput) validate() error {
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Author) == "" {
		return fmt.Errorf("%w: name and author are required", ErrValidation)
	}
	if in.Inventory < 0 || in.Stock < 0 {
		return fmt.Errorf("%w: inventory and stock cannot be negative", ErrValidation)
	}
	if in.Stock > in.Inventory {
		return fmt.Errorf("%w: stock cannot exceed inventory", ErrValidation)
	}
	return nil
}

// CreateBook adds a book to the catalogue. Librarian only.
func (s *CatalogService) CreateBook(actor *models.User, in BookInput) (*models.Book, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	book := &models.Book{
		Name:            strings.TrimSpace(in.Name),
		Author:          strings.TrimSpace(in.Author),
		Inventory:       in.Inventory,
		Stock:           in.Stock,
		Description:     in.Description,
		Category:        in.Category,
		PublicationYear: in.PublicationYear,
		ThumbnailURL:    in.ThumbnailURL,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.books.Create(tx, book); err != nil {
			return err
		}
		return s.notifications.Create(tx, &models.Notification{
			ForLibrarians: true,
			Type:          models.NotificationBookAdded,
			Message:       fmt.Sprintf("Cartea '%s' de %s a fost adăugată", book.Name, book.Author),
			BookID:        &book.ID,
			CreatedByID:   &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INFO] CreateBook: created %q (id=%s) with %d copies", book.Name, book.ID, book.Inventory)
	return book, nil
}

// UpdateBook replaces a book's descriptive fields. Counts are changed through
// UpdateStock so the invariant check stays in one place.
func (s *CatalogService) UpdateBook(actor *models.User, id uuid.UUID, in BookInput) (*models.Book, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var updated *models.Book
	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.books.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundOr(err, "book")
		}
		book.Name = strings.TrimSpace(in.Name)
		book.Author = strings.TrimSpace(in.Author)
		book.Description = in.Description
		book.Category = in.Category
		book.PublicationYear = in.PublicationYear
		book.ThumbnailURL = in.ThumbnailURL
		if err := s.books.Save(tx, book); err != nil {
			return err
		}
		updated = book
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateStock sets the stock and/or inventory counters. Nil means "leave as
// is". Emits a stock_updated notification when something actually changed.
func (s *CatalogService) UpdateStock(actor *models.User, id uuid.UUID, newStock, newInventory *int) (*models.Book, error) {
	if err := requireLibrarian(actor); err != nil {
		return nil, err
	}

	var updated *models.Book
	err := s.db.Transaction(func(tx *gorm.DB) error {
		book, err := s.books.GetByIDForUpdate(tx, id)
		if err != nil {
			return notFoundOr(err, "book")
		}

		oldStock, oldInventory := book.Stock, book.Inventory
		stock, inventory := oldStock, oldInventory
		if newStock != nil {
			stock = *newStock
		}
		if newInventory != nil {
			inventory = *newInventory
		}
		if stock < 0 || inventory < 0 {
			return fmt.Errorf("%w: stock and inventory cannot be negative", ErrValidation)
		}
		if stock > inventory {
			return fmt.Errorf("%w: stock cannot exceed inventory", ErrValidation)
		}
		if stock == oldStock && inventory == oldInventory {
			updated = book
			return nil
		}

		if err := s.books.SetCounts(tx, id, stock, inventory); err != nil {
			return err
		}
		book.Stock = stock
		book.Inventory = inventory
		updated = book

		changes := make([]string, 0, 2)
		if stock != oldStock {
			changes = append(changes, fmt.Sprintf("stoc: %d → %d", oldStock, stock))
		}
		if inventory != oldInventory {
			changes = append(changes, fmt.Sprintf("inventar: %d → %d", oldInventory, inventory))
		}
		return s.notifications.Create(tx, &models.Notification{
			ForLibrarians: true,
			Type:          models.NotificationStockUpdated,
			Message:       fmt.Sprintf("Cartea '%s' a fost actualizată (%s)", book.Name, strings.Join(changes, ", ")),
			BookID:        &book.ID,
			CreatedByID:   &actor.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteBook removes a book from the catalogue. Borrowing history rows keep
// their RESTRICT constraint, so books with recorded loans cannot vanish.
func (s *CatalogService) DeleteBook(actor *models.User, id uuid.UUID) error {
	if err := requireLibrarian(actor); err != nil {
		return err
	}
	if _, err := s.books.GetByID(nil, id); err != nil {
		return notFoundOr(err, "book")
	}
	if err := s.books.Delete(nil, id); err != nil {
		return err
	}
	log.Printf("[INFO] DeleteBook: deleted book %s", id)
	return nil
}

// GetBook returns one book by ID.
func (s *CatalogService) GetBook(id uuid.UUID) (*models.Book, error) {
	book, err := s.books.GetByID(nil, id)
	if err != nil {
		return nil, notFoundOr(err, "book")
	}
	return book, nil
}

// ListBooks returns the whole catalogue, or a name/author substring search
// when query is non-empty.
func (s *CatalogService) ListBooks(query string) ([]models.Book, error) {
	if strings.TrimSpace(query) != "" {
		return s.books.Search(nil, strings.TrimSpace(query))
	}
	return s.books.List(nil)
}
