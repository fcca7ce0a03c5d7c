package constants

// ImageExtensions maps the image MIME types the portal delivers to the file
// extension used when storing them. Unknown types are stored without extension.
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpeg",
	"image/png":  ".png",
}

// MimeTypes maps file extensions back to their MIME types
var MimeTypes = map[string]string{
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// DefaultMimeType is the fallback MIME type for unknown file extensions
const DefaultMimeType = "application/octet-stream"
