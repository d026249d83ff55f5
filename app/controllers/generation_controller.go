package controllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/proshotai/proshot/app/models"
	"github.com/proshotai/proshot/app/repository"
	"github.com/proshotai/proshot/internal/pkg/credits"
	"github.com/proshotai/proshot/internal/pkg/generation"
	"github.com/proshotai/proshot/internal/pkg/imageprocessor"
	"github.com/proshotai/proshot/internal/pkg/storage"
	"github.com/proshotai/proshot/internal/pkg/upload"
	"github.com/proshotai/proshot/internal/pkg/usercontext"
)

// MaxReferenceImages limits the style references per generation.
const MaxReferenceImages = 3

// GenerationController drives the full generation pipeline: upload, debit,
// model call, storage and previews.
type GenerationController struct {
	generations repository.GenerationRepository
	ledger      *credits.Service
	model       *generation.Client
	store       *storage.Client
	previews    *imageprocessor.Processor
}

// NewGenerationController wires the generation controller with its dependencies.
func NewGenerationController(
	generations repository.GenerationRepository,
	ledger *credits.Service,
	model *generation.Client,
	store *storage.Client,
	previews *imageprocessor.Processor,
) *GenerationController {
	return &GenerationController{
		generations: generations,
		ledger:      ledger,
		model:       model,
		store:       store,
		previews:    previews,
	}
}

// HandleCreateGeneration runs one generation job end to end. Credits are
// debited before the model call and refunded when the model fails, so a
// crashed generation never burns paid credits.
func (gc *GenerationController) HandleCreateGeneration(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": "Ungültige Anfrage"})
	}

	settings := generation.Settings{
		NumberOfImages: parseFormInt(c.FormValue("number_of_images"), 1),
		OutputFormat:   c.FormValue("output_format", generation.OutputFormatWebP),
		AspectRatio:    c.FormValue("aspect_ratio", "1:1"),
	}
	prompt := strings.TrimSpace(c.FormValue("prompt"))
	title := strings.TrimSpace(c.FormValue("title"))

	productFiles := form.File["product_image"]
	if len(productFiles) != 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_product_image", "message": "Genau ein Produktbild wird benötigt"})
	}
	referenceFiles := form.File["reference_images"]
	if len(referenceFiles) > MaxReferenceImages {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "too_many_references", "message": fmt.Sprintf("Höchstens %d Referenzbilder sind erlaubt", MaxReferenceImages)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	// Uploads first: a rejected file must not cost anything.
	productKey, err := gc.storeUpload(ctx, storage.BucketProductImages, productFiles[0])
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_image", "message": err.Error()})
	}
	referenceKeys := make([]string, 0, len(referenceFiles))
	for _, file := range referenceFiles {
		key, err := gc.storeUpload(ctx, storage.BucketReferenceImages, file)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_image", "message": err.Error()})
		}
		referenceKeys = append(referenceKeys, key)
	}

	imageURLs, err := gc.presignInputs(ctx, productKey, referenceKeys)
	if err != nil {
		log.Printf("[Generation] Presign fehlgeschlagen: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Bild-URLs konnten nicht erzeugt werden"})
	}

	request := generation.Request{Prompt: prompt, ImageURLs: imageURLs, Settings: settings}
	if err := request.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	cost := credits.CostForImages(settings.NumberOfImages)
	balance, err := gc.ledger.Debit(ctx, userCtx.UserID, cost, map[string]any{
		"purpose":          "image_generation",
		"number_of_images": settings.NumberOfImages,
	})
	if err != nil {
		if errors.Is(err, credits.ErrInsufficientCredits) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":   "insufficient_credits",
				"message": "Nicht genügend Credits für diese Generierung",
				"balance": balance,
				"cost":    cost,
			})
		}
		log.Printf("[Generation] Debit für User %d fehlgeschlagen: %v", userCtx.UserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Credits konnten nicht abgebucht werden"})
	}

	gen := &models.Generation{
		UUID:              uuid.NewString(),
		UserID:            userCtx.UserID,
		Title:             title,
		TextPrompt:        prompt,
		OriginalImagePath: productKey,
		NumberOfImages:    settings.NumberOfImages,
		OutputFormat:      settings.OutputFormat,
		AspectRatio:       settings.AspectRatio,
		Status:            models.GenerationStatusPending,
		CreditsSpent:      cost,
	}
	if err := gc.generations.Create(gen); err != nil {
		gc.refund(ctx, userCtx.UserID, cost, gen.UUID)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Generierung konnte nicht angelegt werden"})
	}
	refs := make([]models.GenerationReferenceImage, 0, len(referenceKeys))
	for _, key := range referenceKeys {
		refs = append(refs, models.GenerationReferenceImage{ImagePath: key})
	}
	if err := gc.generations.AddReferenceImages(gen.ID, refs); err != nil {
		log.Printf("[Generation] Referenzbilder für %s nicht gespeichert: %v", gen.UUID, err)
	}

	result, err := gc.model.Generate(ctx, request)
	if err != nil {
		gc.refund(ctx, userCtx.UserID, cost, gen.UUID)
		_ = gc.generations.UpdateStatus(gen.UUID, models.GenerationStatusFailed)
		if errors.Is(err, generation.ErrPayloadTooLarge) {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "payload_too_large", "message": err.Error()})
		}
		log.Printf("[Generation] Modell-Aufruf für %s fehlgeschlagen: %v", gen.UUID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "generation_failed", "message": "Die Generierung ist fehlgeschlagen, deine Credits wurden erstattet"})
	}

	outputs, err := gc.storeOutputs(ctx, gen, result)
	if err != nil {
		gc.refund(ctx, userCtx.UserID, cost, gen.UUID)
		_ = gc.generations.UpdateStatus(gen.UUID, models.GenerationStatusFailed)
		log.Printf("[Generation] Ergebnis-Speicherung für %s fehlgeschlagen: %v", gen.UUID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "generation_failed", "message": "Die Generierung ist fehlgeschlagen, deine Credits wurden erstattet"})
	}

	if err := gc.generations.UpdateStatus(gen.UUID, models.GenerationStatusCompleted); err != nil {
		log.Printf("[Generation] Status für %s nicht aktualisiert: %v", gen.UUID, err)
	}

	urls := make([]fiber.Map, 0, len(outputs))
	for _, img := range outputs {
		url, err := gc.store.PresignGet(ctx, storage.BucketGeneratedImages, img.ImagePath, storage.DefaultPresignTTL)
		if err != nil {
			log.Printf("[Generation] Presign für %s fehlgeschlagen: %v", img.ImagePath, err)
			continue
		}
		urls = append(urls, fiber.Map{"url": url, "path": img.ImagePath})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"uuid":          gen.UUID,
		"status":        models.GenerationStatusCompleted,
		"credits_spent": cost,
		"balance":       balance,
		"images":        urls,
	})
}

// HandleListGenerations returns the paginated gallery of the current user.
func (gc *GenerationController) HandleListGenerations(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	page := parseFormInt(c.Query("page", "1"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseFormInt(c.Query("page_size", "20"), 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	generations, err := gc.generations.GetByUserID(userCtx.UserID, (page-1)*pageSize, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Galerie konnte nicht geladen werden"})
	}
	total, err := gc.generations.CountByUserID(userCtx.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Galerie konnte nicht geladen werden"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()

	items := make([]fiber.Map, 0, len(generations))
	for _, gen := range generations {
		items = append(items, gc.generationJSON(ctx, &gen))
	}

	return c.JSON(fiber.Map{
		"generations": items,
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
	})
}

// HandleGetGeneration returns one generation with presigned image URLs.
func (gc *GenerationController) HandleGetGeneration(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	gen, err := gc.generations.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Generierung nicht gefunden"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Generierung konnte nicht geladen werden"})
	}
	if gen.UserID != userCtx.UserID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Generierung nicht gefunden"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 15*time.Second)
	defer cancel()
	return c.JSON(gc.generationJSON(ctx, gen))
}

// storeUpload validates one uploaded file and streams it to object storage.
func (gc *GenerationController) storeUpload(ctx context.Context, purpose string, file *multipart.FileHeader) (string, error) {
	if file.Size > upload.MaxUploadSize {
		return "", errors.New("Die Datei ist zu groß (max. 10 MB)")
	}

	f, err := file.Open()
	if err != nil {
		return "", errors.New("Die Datei konnte nicht gelesen werden")
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	contentType, err := upload.ValidateImageBySniff(file.Filename, head[:n])
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return "", errors.New("Die Datei konnte nicht gelesen werden")
	}

	now := time.Now()
	key := fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), uuid.NewString(), strings.ToLower(extOf(file.Filename)))
	return gc.store.Upload(ctx, purpose, key, f, contentType)
}

// presignInputs builds the model-facing URLs, product image first.
func (gc *GenerationController) presignInputs(ctx context.Context, productKey string, referenceKeys []string) ([]string, error) {
	urls := make([]string, 0, 1+len(referenceKeys))
	productURL, err := gc.store.PresignGet(ctx, storage.BucketProductImages, productKey, storage.DefaultPresignTTL)
	if err != nil {
		return nil, err
	}
	urls = append(urls, productURL)
	for _, key := range referenceKeys {
		refURL, err := gc.store.PresignGet(ctx, storage.BucketReferenceImages, key, storage.DefaultPresignTTL)
		if err != nil {
			return nil, err
		}
		urls = append(urls, refURL)
	}
	return urls, nil
}

// storeOutputs mirrors the delivered images into our bucket and queues the
// preview variants.
func (gc *GenerationController) storeOutputs(ctx context.Context, gen *models.Generation, result *generation.Result) ([]models.GenerationImage, error) {
	images := make([]models.GenerationImage, 0, len(result.Images))
	now := time.Now()
	for _, delivered := range result.Images {
		body, contentType, err := gc.model.FetchImage(ctx, delivered.URL)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%04d/%02d/%s.%s", now.Year(), int(now.Month()), uuid.NewString(), gen.OutputFormat)
		_, err = gc.store.Upload(ctx, storage.BucketGeneratedImages, key, body, contentType)
		body.Close()
		if err != nil {
			return nil, err
		}
		images = append(images, models.GenerationImage{
			ImagePath:   key,
			AspectRatio: gen.AspectRatio,
		})
	}

	if err := gc.generations.AddImages(gen.ID, images); err != nil {
		return nil, err
	}
	for _, img := range images {
		gc.previews.Enqueue(img.ID, img.ImagePath)
	}
	return images, nil
}

// generationJSON renders one generation with fresh presigned URLs.
func (gc *GenerationController) generationJSON(ctx context.Context, gen *models.Generation) fiber.Map {
	images := make([]fiber.Map, 0, len(gen.OutputImages))
	for _, img := range gen.OutputImages {
		entry := fiber.Map{"path": img.ImagePath}
		if url, err := gc.store.PresignGet(ctx, storage.BucketGeneratedImages, img.ImagePath, storage.DefaultPresignTTL); err == nil {
			entry["url"] = url
		}
		if img.PreviewPath != "" {
			if url, err := gc.store.PresignGet(ctx, storage.BucketGeneratedImages, img.PreviewPath, storage.DefaultPresignTTL); err == nil {
				entry["preview_url"] = url
			}
		}
		images = append(images, entry)
	}

	return fiber.Map{
		"uuid":          gen.UUID,
		"title":         gen.Title,
		"prompt":        gen.TextPrompt,
		"status":        gen.Status,
		"aspect_ratio":  gen.AspectRatio,
		"output_format": gen.OutputFormat,
		"credits_spent": gen.CreditsSpent,
		"created_at":    gen.CreatedAt,
		"images":        images,
	}
}

// refund returns the debited credits after a failed generation.
func (gc *GenerationController) refund(ctx context.Context, userID uint, amount int, generationUUID string) {
	_, err := gc.ledger.Grant(ctx, userID, amount, models.TransactionTypeRefund, "", map[string]any{
		"reason":     "generation_failed",
		"generation": generationUUID,
	})
	if err != nil {
		log.Printf("[Generation] Erstattung von %d Credits für User %d fehlgeschlagen: %v", amount, userID, err)
	}
}

func parseFormInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func extOf(filename string) string {
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		return filename[idx:]
	}
	return ""
}
