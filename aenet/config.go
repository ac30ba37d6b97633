package ae

// Config configures the encoder, decoder and autoencoder networks.
type Config struct {
	N int // base number of filters
	H int // latent dimension

	BatchSize     int // batch size
	Width, Height int // image size
	Channels      int // image channels

	FwdOnly bool // is this a fwd only graph?
}

// DefaultConf returns the configuration used for 64×64 RGB images.
func DefaultConf(n, h int) Config {
	return Config{
		N:         n,
		H:         h,
		BatchSize: 16,
		Width:     64,
		Height:    64,
		Channels:  3,
	}
}

func (conf Config) IsValid() bool {
	return conf.N >= 1 &&
		conf.H >= 1 &&
		conf.BatchSize >= 1 &&
		conf.Channels >= 1 &&
		// four halvings in the encoder, three doublings in the decoder
		conf.Width >= 16 && conf.Width%16 == 0 &&
		conf.Height >= 16 && conf.Height%16 == 0
}

// encoded is the spatial size of the last encoder feature map.
func (conf Config) encoded() (h, w int) { return conf.Height / 16, conf.Width / 16 }

// seed is the spatial size of the decoder's first feature map.
func (conf Config) seed() (h, w int) { return conf.Height / 8, conf.Width / 8 }

func (conf Config) imageShape() []int {
	return []int{conf.BatchSize, conf.Channels, conf.Height, conf.Width}
}
