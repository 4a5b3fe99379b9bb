package mmf

// Magic signatures marking the start of the game payload inside the PE
// image. The signature selects the string width and runtime family.
var (
	SigUnicode    = [4]byte{'P', 'A', 'M', 'U'} // unicode (UTF-16LE strings)
	SigANSI       = [4]byte{'P', 'A', 'M', 'E'} // narrow (Windows-1252 strings)
	SigRecompiled = [4]byte{'P', 'U', 'M', 'A'} // recompiled unicode games
	SigCNC        = [4]byte{'P', 'M', 'U', 'C'} // Click & Create legacy
)

// Dialect is the authoring-tool generation. It affects integer widths,
// string widths, the magic-salt derivation and a handful of chunk-id
// semantics.
type Dialect uint8

const (
	DialectOld Dialect = iota
	Dialect284
	Dialect288
)

func (d Dialect) String() string {
	switch d {
	case DialectOld:
		return "old"
	case Dialect284:
		return "2.84"
	case Dialect288:
		return "2.88"
	default:
		return "unknown"
	}
}

// ProductCode identifies the runtime that built the game.
type ProductCode uint16

const (
	ProductMMF1      ProductCode = 0x0300
	ProductMMF15     ProductCode = 0x0301
	ProductMMF2      ProductCode = 0x0302
	ProductCNCLegacy ProductCode = 0x0200
	ProductCNC       ProductCode = 0x0201
)

func (p ProductCode) String() string {
	switch p {
	case ProductMMF1:
		return "MMF1"
	case ProductMMF15:
		return "MMF1.5"
	case ProductMMF2:
		return "MMF2"
	case ProductCNCLegacy:
		return "CNC (legacy)"
	case ProductCNC:
		return "CNC"
	default:
		return "unknown"
	}
}

// Encoding is the per-chunk encoding mode stored on the wire.
type Encoding uint16

const (
	EncodingPlain               Encoding = 0 // no compression, no encryption
	EncodingEncrypted           Encoding = 1
	EncodingCompressed          Encoding = 2
	EncodingEncryptedCompressed Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case EncodingPlain:
		return "plain"
	case EncodingEncrypted:
		return "encrypted"
	case EncodingCompressed:
		return "compressed"
	case EncodingEncryptedCompressed:
		return "encrypted+compressed"
	default:
		return "invalid"
	}
}

// Valid reports whether e is one of the four wire modes.
func (e Encoding) Valid() bool { return e <= EncodingEncryptedCompressed }

// ChunkID tags a chunk in the resource stream.
type ChunkID uint16

// Header group.
const (
	ChunkVitalisePreview   ChunkID = 0x2223
	ChunkHeader            ChunkID = 0x2224
	ChunkTitle             ChunkID = 0x2225
	ChunkAuthor            ChunkID = 0x2226
	ChunkMenu              ChunkID = 0x2227
	ChunkExtensionPath     ChunkID = 0x2228
	ChunkExtensions        ChunkID = 0x2229
	ChunkObjectBank        ChunkID = 0x222A
	ChunkGlobalEvents      ChunkID = 0x222B
	ChunkFrameHandles      ChunkID = 0x222C
	ChunkFrameBank         ChunkID = 0x222D
	ChunkImageBank         ChunkID = 0x222E
	ChunkSoundBank         ChunkID = 0x222F
	ChunkMusicBank         ChunkID = 0x2230
	ChunkFontBank          ChunkID = 0x2231
	ChunkCopyright         ChunkID = 0x2232
	ChunkProjectPath       ChunkID = 0x2233
	ChunkOutputPath        ChunkID = 0x2234
	ChunkAbout             ChunkID = 0x2235
	ChunkIcon              ChunkID = 0x2236
	ChunkDemoVersion       ChunkID = 0x2237
	ChunkSecurityNumber    ChunkID = 0x2238
	ChunkBinaryFiles       ChunkID = 0x2239
	ChunkGlobalValues      ChunkID = 0x223A
	ChunkGlobalStrings     ChunkID = 0x223B
	ChunkGlobalValueNames  ChunkID = 0x223C
	ChunkGlobalStringNames ChunkID = 0x223D
	ChunkMovementExts      ChunkID = 0x223E
	ChunkRandomSeed        ChunkID = 0x223F // random seed inside a frame item, unknown elsewhere
	ChunkExtendedHeader    ChunkID = 0x2240
	ChunkSpacer            ChunkID = 0x2241
	ChunkProtection        ChunkID = 0x2242
	ChunkShaders           ChunkID = 0x2243
	ChunkExeOnly           ChunkID = 0x2244
	ChunkObjectNames       ChunkID = 0x2245
	ChunkObjectProperties  ChunkID = 0x2246
	ChunkTrueTypeFontsMeta ChunkID = 0x2247
	ChunkTrueTypeFonts     ChunkID = 0x2248
	ChunkTitle2            ChunkID = 0x2249
	ChunkExtensionList     ChunkID = 0x224A
	ChunkMenuImages        ChunkID = 0x224B
)

// Frame group.
const (
	ChunkFrame               ChunkID = 0x3333
	ChunkFrameName           ChunkID = 0x3334
	ChunkFrameHeader         ChunkID = 0x3335
	ChunkFramePassword       ChunkID = 0x3336
	ChunkFramePalette        ChunkID = 0x3337
	ChunkObjectInstances     ChunkID = 0x3338
	ChunkFadeInFrame         ChunkID = 0x3339
	ChunkFadeOutFrame        ChunkID = 0x333A
	ChunkFadeIn              ChunkID = 0x333B
	ChunkFadeOut             ChunkID = 0x333C
	ChunkFrameEvents         ChunkID = 0x333D
	ChunkPlayHeader          ChunkID = 0x333E
	ChunkAdditionalItem      ChunkID = 0x333F
	ChunkAdditionalInstance  ChunkID = 0x3340
	ChunkFrameLayers         ChunkID = 0x3341
	ChunkFrameVirtualSize    ChunkID = 0x3342
	ChunkDemoFilePath        ChunkID = 0x3343
	ChunkFrameLayerEffect    ChunkID = 0x3344
	ChunkFrameBlueray        ChunkID = 0x3345
	ChunkMovementTimeBase    ChunkID = 0x3346
	ChunkMosaicImageTable    ChunkID = 0x3347
	ChunkFrameEffects        ChunkID = 0x3348
	ChunkFrameIphoneOptions  ChunkID = 0x334C
)

// Object group.
const (
	ChunkObjectHeader     ChunkID = 0x4444
	ChunkObjectName       ChunkID = 0x4446
	ChunkObjectProps      ChunkID = 0x4447
	ChunkObjectEffect     ChunkID = 0x4448
)

// Bank item tags and sentinels.
const (
	ChunkImageItem ChunkID = 0x6666
	ChunkImageEnd  ChunkID = 0x6667
	ChunkSoundItem ChunkID = 0x6A00
	ChunkMusicItem ChunkID = 0x6B00
	ChunkFontItem  ChunkID = 0x6C00

	// ChunkLast terminates a container.
	ChunkLast ChunkID = 0x7F7F
)

var chunkNames = map[ChunkID]string{
	ChunkVitalisePreview:   "vitalise preview",
	ChunkHeader:            "header",
	ChunkTitle:             "title",
	ChunkAuthor:            "author",
	ChunkMenu:              "menu",
	ChunkExtensionPath:     "extension path",
	ChunkExtensions:        "extensions",
	ChunkObjectBank:        "object bank",
	ChunkGlobalEvents:      "global events",
	ChunkFrameHandles:      "frame handles",
	ChunkFrameBank:         "frame bank",
	ChunkImageBank:         "image bank",
	ChunkSoundBank:         "sound bank",
	ChunkMusicBank:         "music bank",
	ChunkFontBank:          "font bank",
	ChunkCopyright:         "copyright",
	ChunkProjectPath:       "project path",
	ChunkOutputPath:        "output path",
	ChunkAbout:             "about",
	ChunkIcon:              "icon",
	ChunkDemoVersion:       "demo version",
	ChunkSecurityNumber:    "security number",
	ChunkBinaryFiles:       "binary files",
	ChunkGlobalValues:      "global values",
	ChunkGlobalStrings:     "global strings",
	ChunkGlobalValueNames:  "global value names",
	ChunkGlobalStringNames: "global string names",
	ChunkMovementExts:      "movement extensions",
	ChunkRandomSeed:        "random seed",
	ChunkExtendedHeader:    "extended header",
	ChunkSpacer:            "spacer",
	ChunkProtection:        "protection",
	ChunkShaders:           "shaders",
	ChunkExeOnly:           "exe only",
	ChunkObjectNames:       "object names",
	ChunkObjectProperties:  "object properties",
	ChunkTrueTypeFontsMeta: "truetype fonts meta",
	ChunkTrueTypeFonts:     "truetype fonts",
	ChunkTitle2:            "title 2",
	ChunkExtensionList:     "extension list",
	ChunkMenuImages:        "menu images",
	ChunkFrame:             "frame",
	ChunkFrameName:         "frame name",
	ChunkFrameHeader:       "frame header",
	ChunkFramePassword:     "frame password",
	ChunkFramePalette:      "frame palette",
	ChunkObjectInstances:   "object instances",
	ChunkFadeInFrame:       "fade in frame",
	ChunkFadeOutFrame:      "fade out frame",
	ChunkFadeIn:            "fade in",
	ChunkFadeOut:           "fade out",
	ChunkFrameEvents:       "frame events",
	ChunkPlayHeader:        "play header",
	ChunkAdditionalItem:    "additional item",
	ChunkAdditionalInstance: "additional item instance",
	ChunkFrameLayers:        "frame layers",
	ChunkFrameVirtualSize:   "frame virtual size",
	ChunkDemoFilePath:       "demo file path",
	ChunkFrameLayerEffect:   "frame layer effect",
	ChunkFrameBlueray:       "frame blueray",
	ChunkMovementTimeBase:   "movement time base",
	ChunkMosaicImageTable:   "mosaic image table",
	ChunkFrameEffects:       "frame effects",
	ChunkFrameIphoneOptions: "frame iphone options",
	ChunkObjectHeader:       "object header",
	ChunkObjectName:         "object name",
	ChunkObjectProps:        "object properties (item)",
	ChunkObjectEffect:       "object effect",
	ChunkImageItem:          "image item",
	ChunkImageEnd:           "image end",
	ChunkSoundItem:          "sound item",
	ChunkMusicItem:          "music item",
	ChunkFontItem:           "font item",
	ChunkLast:               "last",
}

func (id ChunkID) String() string {
	if name, ok := chunkNames[id]; ok {
		return name
	}
	return "unknown"
}

// stripIDs are the chunks whose decoded payload carries a leading
// 4-byte decoded-size word that must be validated and removed after
// decryption. These are the identifiable metadata and string chunks.
var stripIDs = map[ChunkID]struct{}{
	ChunkTitle:       {},
	ChunkAuthor:      {},
	ChunkCopyright:   {},
	ChunkProjectPath: {},
	ChunkOutputPath:  {},
	ChunkAbout:       {},
	ChunkTitle2:      {},
	ChunkFrameName:   {},
	ChunkObjectName:  {},
	ChunkDemoFilePath: {},
}

// StripsSizePrefix reports whether the decoded payload of id begins
// with a 4-byte decoded-size word on the wire.
func StripsSizePrefix(id ChunkID) bool {
	_, ok := stripIDs[id]
	return ok
}

// GraphicsMode selects the pixel format of an image item payload.
type GraphicsMode uint8

const (
	Gfx2Bit   GraphicsMode = 0 // 4-color indexed
	Gfx4Bit   GraphicsMode = 1 // 16-color indexed
	Gfx8Bit   GraphicsMode = 2 // 256-color indexed
	GfxRGB15  GraphicsMode = 3 // 5-5-5 packed
	GfxRGB16  GraphicsMode = 4 // 5-6-5 packed
	GfxRGB24  GraphicsMode = 5
	GfxRGBA32 GraphicsMode = 6
	GfxJPEG   GraphicsMode = 7
)

func (g GraphicsMode) String() string {
	switch g {
	case Gfx2Bit:
		return "2-bit"
	case Gfx4Bit:
		return "4-bit"
	case Gfx8Bit:
		return "8-bit"
	case GfxRGB15:
		return "15-bit"
	case GfxRGB16:
		return "16-bit"
	case GfxRGB24:
		return "24-bit"
	case GfxRGBA32:
		return "32-bit"
	case GfxJPEG:
		return "jpeg"
	default:
		return "unknown"
	}
}

// Indexed reports whether the mode resolves pixels through a palette.
func (g GraphicsMode) Indexed() bool {
	return g == Gfx2Bit || g == Gfx4Bit || g == Gfx8Bit
}

// ImageFlag bits on an image item.
type ImageFlag uint8

const (
	ImageFlagRLE   ImageFlag = 1 << 0
	ImageFlagAlpha ImageFlag = 1 << 4 // 8-bit alpha plane follows the pixels
	ImageFlagMac   ImageFlag = 1 << 6
)

// ObjectType discriminates an object item's payload.
type ObjectType int16

const (
	ObjectQuickBackdrop ObjectType = 0
	ObjectBackdrop      ObjectType = 1
	ObjectCommon        ObjectType = 2 // anything >= 2 carries a common block
)

func (t ObjectType) String() string {
	switch t {
	case ObjectQuickBackdrop:
		return "quick backdrop"
	case ObjectBackdrop:
		return "backdrop"
	default:
		if t >= ObjectCommon {
			return "common"
		}
		return "unknown"
	}
}
