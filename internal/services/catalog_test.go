package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immatt-0/lenbrary/internal/models"
)

func TestCreateBook(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)

	year := 1930
	book, err := f.catalog.CreateBook(librarian, BookInput{
		Name:            "  Enigma Otiliei ",
		Author:          "George Călinescu",
		Inventory:       5,
		Stock:           5,
		Category:        "roman",
		PublicationYear: &year,
	})
	require.NoError(t, err)
	assert.Equal(t, "Enigma Otiliei", book.Name)
	assert.Equal(t, 5, book.Stock)

	var n int64
	f.db.Model(&models.Notification{}).
		Where("for_librarians = ? AND type = ?", true, models.NotificationBookAdded).
		Count(&n)
	assert.EqualValues(t, 1, n)
}

func TestCreateBookRequiresLibrarian(t *testing.T) {
	f := newFixture(t)
	student, _ := f.seedStudent(t)

	_, err := f.catalog.CreateBook(student, BookInput{Name: "Ion", Author: "Rebreanu", Inventory: 1, Stock: 1})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCreateBookValidation(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)

	_, err := f.catalog.CreateBook(librarian, BookInput{Name: " ", Author: "x", Inventory: 1, Stock: 1})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.catalog.CreateBook(librarian, BookInput{Name: "x", Author: "y", Inventory: 1, Stock: 2})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateBookKeepsCounts(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	book := f.seedBook(t, "Baltagul", 2, 3)

	updated, err := f.catalog.UpdateBook(librarian, book.ID, BookInput{
		Name:      "Baltagul (ediție nouă)",
		Author:    "Mihail Sadoveanu",
		Inventory: 99, // ignored: counts change through UpdateStock only
		Stock:     99,
	})
	require.NoError(t, err)
	assert.Equal(t, "Baltagul (ediție nouă)", updated.Name)
	assert.Equal(t, 2, updated.Stock)
	assert.Equal(t, 3, updated.Inventory)
}

func TestUpdateStock(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	book := f.seedBook(t, "Moromeții", 2, 3)

	newStock := 1
	updated, err := f.catalog.UpdateStock(librarian, book.ID, &newStock, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Stock)
	assert.Equal(t, 3, updated.Inventory)

	var n models.Notification
	require.NoError(t, f.db.Where("type = ?", models.NotificationStockUpdated).First(&n).Error)
	assert.Contains(t, n.Message, "stoc: 2 → 1")
}

func TestUpdateStockInvariant(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	book := f.seedBook(t, "Ion", 2, 3)

	tooMany := 4
	_, err := f.catalog.UpdateStock(librarian, book.ID, &tooMany, nil)
	assert.ErrorIs(t, err, ErrValidation)

	negative := -1
	_, err = f.catalog.UpdateStock(librarian, book.ID, &negative, nil)
	assert.ErrorIs(t, err, ErrValidation)

	// Shrinking inventory below stock is rejected too.
	smallInventory := 1
	_, err = f.catalog.UpdateStock(librarian, book.ID, nil, &smallInventory)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 2, f.reloadBook(t, book.ID).Stock)
}

func TestUpdateStockNoChangeNoNotification(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	book := f.seedBook(t, "Adela", 2, 2)

	same := 2
	_, err := f.catalog.UpdateStock(librarian, book.ID, &same, &same)
	require.NoError(t, err)

	var n int64
	f.db.Model(&models.Notification{}).
		Where("type = ?", models.NotificationStockUpdated).
		Count(&n)
	assert.Zero(t, n)
}

func TestDeleteBook(t *testing.T) {
	f := newFixture(t)
	librarian := f.seedLibrarian(t)
	book := f.seedBook(t, "Mara", 1, 1)

	require.NoError(t, f.catalog.DeleteBook(librarian, book.ID))

	_, err := f.catalog.GetBook(book.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.catalog.DeleteBook(librarian, book.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBooksSearch(t *testing.T) {
	f := newFixture(t)
	f.seedBook(t, "Amintiri din copilărie", 1, 1)
	f.seedBook(t, "Povestea lui Harap-Alb", 1, 1)

	all, err := f.catalog.ListBooks("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := f.catalog.ListBooks("Harap")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Povestea lui Harap-Alb", found[0].Name)

	// Author matches count as well.
	byAuthor, err := f.catalog.ListBooks("Creangă")
	require.NoError(t, err)
	assert.Len(t, byAuthor, 2)
}
