package ae

import (
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

// KUpdate selects when the equilibrium coefficient k_t is updated.
type KUpdate string

const (
	// PerEpoch updates k_t at every epoch boundary from the epoch's loss sums.
	PerEpoch KUpdate = "epoch"
	// PerStep updates k_t after every iteration from the iteration's losses.
	PerStep KUpdate = "step"
	// PerEpochDis updates k_t at every epoch boundary from the discriminator
	// loss sum alone, without clipping.
	PerEpochDis KUpdate = "epoch_dis"
)

// TrainConf holds the hyperparameters of the BEGAN training recipe.
type TrainConf struct {
	Lambda float64 // k_t learning rate
	Gamma  float64 // diversity ratio, target of loss_fake / loss_real

	LearnRate float64 // Adam
	Beta1     float64
	Beta2     float64

	KUpdate KUpdate
	Seed    int64
}

// DefaultTrainConf returns Adam's usual defaults and the BEGAN paper's λ and γ.
func DefaultTrainConf() TrainConf {
	return TrainConf{
		Lambda:    0.001,
		Gamma:     0.5,
		LearnRate: 0.001,
		Beta1:     0.9,
		Beta2:     0.999,
		KUpdate:   PerEpoch,
		Seed:      1,
	}
}

func (tc TrainConf) IsValid() bool {
	return tc.Lambda >= 0 &&
		tc.Gamma >= 0 && tc.Gamma <= 1 &&
		tc.LearnRate > 0 &&
		tc.Beta1 >= 0 && tc.Beta1 < 1 &&
		tc.Beta2 >= 0 && tc.Beta2 < 1 &&
		(tc.KUpdate == PerEpoch || tc.KUpdate == PerStep || tc.KUpdate == PerEpochDis)
}

// Iterator yields batches of raw images, BCHW, with values in [0, 255].
type Iterator interface {
	Next() (*tensor.Dense, error)
	// IsNewEpoch reports whether the last batch returned by Next completed an epoch.
	IsNewEpoch() bool
}

// Report holds the scalars of one training iteration.
type Report struct {
	Epoch       int     `json:"epoch"`
	Iteration   int     `json:"iteration"`
	LossD       float32 `json:"dis/loss"`
	LossG       float32 `json:"gen/loss"`
	LossReal    float32 `json:"loss_real"`
	LossFake    float32 `json:"loss_fake"`
	Kt          float32 `json:"k_t"`
	Convergence float32 `json:"convergence"`
}

// Finite reports whether every loss in the report is a finite number.
func (r Report) Finite() bool {
	for _, v := range []float32{r.LossD, r.LossG, r.LossReal, r.LossFake, r.Convergence} {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// State is the part of an Updater that survives a snapshot, besides the
// network parameters.
type State struct {
	Epoch     int // current epoch, zero based
	Iteration int // completed iterations
	Kt        float32
	SumD      float32 // sum of loss_D over the current epoch
	SumG      float32 // sum of loss_G over the current epoch

	EpochEnded bool // the last batch completed an epoch
}

// Updater performs BEGAN optimization steps.
//
// The generator and the discriminator live on two graphs. The generator graph
// computes G(z) and loss_G = |D'(G(z)) - G(z)| where D' is a frozen mirror of
// the discriminator, refreshed before every step. The discriminator graph
// computes loss_D = |D(x) - x| - k_t |D(G(z)) - G(z)|, with G(z) fed in as a
// constant. Each graph differentiates only its own network's parameters.
type Updater struct {
	Config
	TrainConf
	State

	it  Iterator
	rng *rand.Rand

	genG, disG *G.ExprGraph
	gen        *Decoder
	frozen     *AutoEncoder
	dis        *AutoEncoder

	z, x, fakeIn, kt *G.Node

	fake, lossG                G.Value
	lossReal, lossFake, lossD G.Value

	genVM, disVM         G.VM
	genSolver, disSolver G.Solver

	zBuf, xBuf, fakeBuf *tensor.Dense
}

// NewUpdater builds both graphs and their machines.
func NewUpdater(conf Config, tc TrainConf, it Iterator) (*Updater, error) {
	if !conf.IsValid() {
		return nil, errors.Errorf("invalid network config %+v", conf)
	}
	if !tc.IsValid() {
		return nil, errors.Errorf("invalid training config %+v", tc)
	}
	u := &Updater{
		Config:    conf,
		TrainConf: tc,
		it:        it,
		rng:       rand.New(rand.NewSource(tc.Seed)),
	}
	if err := u.Init(); err != nil {
		return nil, err
	}
	return u, nil
}

// Init (re)builds the graphs. Parameters are freshly initialized.
func (u *Updater) Init() error {
	if err := u.initGenerator(); err != nil {
		return errors.WithMessage(err, "generator graph")
	}
	if err := u.initDiscriminator(); err != nil {
		return errors.WithMessage(err, "discriminator graph")
	}

	u.zBuf = tensor.New(tensor.WithShape(u.BatchSize, u.H), tensor.Of(Float))
	u.xBuf = tensor.New(tensor.WithShape(u.imageShape()...), tensor.Of(Float))
	u.fakeBuf = tensor.New(tensor.WithShape(u.imageShape()...), tensor.Of(Float))

	u.genVM = G.NewTapeMachine(u.genG, G.BindDualValues(u.gen.Params()...))
	u.disVM = G.NewTapeMachine(u.disG, G.BindDualValues(u.dis.Params()...))
	u.genSolver = u.solver()
	u.disSolver = u.solver()
	return nil
}

func (u *Updater) solver() G.Solver {
	return G.NewAdamSolver(
		G.WithLearnRate(u.LearnRate),
		G.WithBeta1(u.Beta1),
		G.WithBeta2(u.Beta2),
	)
}

func (u *Updater) initGenerator() error {
	u.genG = G.NewGraph()
	u.gen = NewDecoder(u.genG, u.Config, "gen")
	u.frozen = NewAutoEncoder(u.genG, u.Config, "frozen")
	u.z = G.NewMatrix(u.genG, Float, G.WithShape(u.BatchSize, u.H), G.WithName("z"))

	fake, err := u.gen.Decode(u.z)
	if err != nil {
		return err
	}
	G.Read(fake, &u.fake)
	recon, err := u.frozen.Discriminate(fake)
	if err != nil {
		return err
	}

	var m maebe
	lossG := m.l1(recon, fake)
	if m.err != nil {
		return m.err
	}
	G.WithName("loss_G")(lossG)
	G.Read(lossG, &u.lossG)

	if _, err = G.Grad(lossG, u.gen.Params()...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (u *Updater) initDiscriminator() error {
	u.disG = G.NewGraph()
	u.dis = NewAutoEncoder(u.disG, u.Config, "dis")
	u.x = G.NewTensor(u.disG, Float, 4, G.WithShape(u.imageShape()...), G.WithName("x"))
	u.fakeIn = G.NewTensor(u.disG, Float, 4, G.WithShape(u.imageShape()...), G.WithName("fake"))
	u.kt = G.NewScalar(u.disG, Float, G.WithName("k_t"))

	reconReal, err := u.dis.Discriminate(u.x)
	if err != nil {
		return err
	}
	reconFake, err := u.dis.Discriminate(u.fakeIn)
	if err != nil {
		return err
	}

	var m maebe
	lossReal := m.l1(reconReal, u.x)
	lossFake := m.l1(reconFake, u.fakeIn)
	weighted := m.do(func() (*G.Node, error) { return G.Mul(u.kt, lossFake) })
	lossD := m.do(func() (*G.Node, error) { return G.Sub(lossReal, weighted) })
	if m.err != nil {
		return m.err
	}
	G.Read(lossReal, &u.lossReal)
	G.Read(lossFake, &u.lossFake)
	G.Read(lossD, &u.lossD)

	if _, err = G.Grad(lossD, u.dis.Params()...); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Update runs one training iteration and returns its report.
func (u *Updater) Update() (Report, error) {
	if u.Iteration == 0 || u.EpochEnded {
		u.startEpoch()
	}

	batch, err := u.it.Next()
	if err != nil {
		return Report{}, errors.WithMessage(err, "fetching batch")
	}
	if err = u.normalize(batch); err != nil {
		return Report{}, err
	}
	uniform(u.rng, u.zBuf)

	// generator pass, against the current discriminator
	if err = copyParams(u.frozen.Params(), u.dis.Params()); err != nil {
		return Report{}, err
	}
	if err = G.Let(u.z, u.zBuf); err != nil {
		return Report{}, errors.WithStack(err)
	}
	if err = u.genVM.RunAll(); err != nil {
		return Report{}, errors.Wrap(err, "generator pass")
	}
	copy(u.fakeBuf.Data().([]float32), u.fake.Data().([]float32))

	// discriminator pass
	if err = G.Let(u.x, u.xBuf); err != nil {
		return Report{}, errors.WithStack(err)
	}
	if err = G.Let(u.fakeIn, u.fakeBuf); err != nil {
		return Report{}, errors.WithStack(err)
	}
	if err = G.Let(u.kt, u.Kt); err != nil {
		return Report{}, errors.WithStack(err)
	}
	if err = u.disVM.RunAll(); err != nil {
		return Report{}, errors.Wrap(err, "discriminator pass")
	}

	if err = u.genSolver.Step(G.NodesToValueGrads(u.gen.Params())); err != nil {
		return Report{}, errors.Wrap(err, "generator step")
	}
	if err = u.disSolver.Step(G.NodesToValueGrads(u.dis.Params())); err != nil {
		return Report{}, errors.Wrap(err, "discriminator step")
	}
	u.genVM.Reset()
	u.disVM.Reset()

	r := Report{
		Epoch:     u.Epoch,
		Iteration: u.Iteration + 1,
		LossD:     scalar(u.lossD),
		LossG:     scalar(u.lossG),
		LossReal:  scalar(u.lossReal),
		LossFake:  scalar(u.lossFake),
		Kt:        u.Kt,
	}
	gamma := float32(u.Gamma)
	r.Convergence = Convergence(r.LossReal, r.LossFake, gamma)

	u.SumD += r.LossD
	u.SumG += r.LossG
	if u.KUpdate == PerStep {
		u.Kt = StepK(u.Kt, float32(u.Lambda), gamma, r.LossReal, r.LossFake)
	}
	u.Iteration++
	u.EpochEnded = u.it.IsNewEpoch()
	return r, nil
}

// startEpoch resets the loss sums. k_t is zero through the first epoch.
func (u *Updater) startEpoch() {
	if u.Iteration == 0 {
		u.Kt = 0
	} else {
		switch u.KUpdate {
		case PerEpoch:
			u.Kt = EpochK(u.Kt, float32(u.Lambda), float32(u.Gamma), u.SumD, u.SumG)
		case PerEpochDis:
			u.Kt = DisEpochK(u.Kt, float32(u.Lambda), float32(u.Gamma), u.SumD)
		}
		u.Epoch++
	}
	u.SumD = 0
	u.SumG = 0
	u.EpochEnded = false
}

// EpochsDone returns the number of completed epochs.
func (u *Updater) EpochsDone() int {
	if u.EpochEnded {
		return u.Epoch + 1
	}
	return u.Epoch
}

func (u *Updater) normalize(batch *tensor.Dense) error {
	if !batch.Shape().Eq(u.xBuf.Shape()) {
		return errors.Errorf("batch has shape %v, expected %v", batch.Shape(), u.xBuf.Shape())
	}
	raw, ok := batch.Data().([]float32)
	if !ok {
		return errors.Errorf("batch of %v, expected float32", batch.Dtype())
	}
	data := u.xBuf.Data().([]float32)
	copy(data, raw)
	vecf32.Scale(data, 1.0/255)
	return nil
}

// Generator returns the generator network.
func (u *Updater) Generator() *Decoder { return u.gen }

// Discriminator returns the discriminator network.
func (u *Updater) Discriminator() *AutoEncoder { return u.dis }

// Close implements a closer, because the machines are resources.
func (u *Updater) Close() error {
	var allErrs manyErr
	for _, m := range []G.VM{u.genVM, u.disVM} {
		if m == nil {
			continue
		}
		if err := m.Close(); err != nil {
			allErrs = append(allErrs, err)
		}
	}
	if len(allErrs) > 0 {
		return allErrs
	}
	return nil
}

// Convergence is the BEGAN convergence measure
// M = loss_real + |γ·loss_real - loss_fake|.
func Convergence(lossReal, lossFake, gamma float32) float32 {
	return lossReal + math32.Abs(gamma*lossReal-lossFake)
}

// EpochK is the per-epoch equilibrium update
// k ← clip(k + λ(γ·ΣL_D - ΣL_G), 0, 1).
func EpochK(kt, lambda, gamma, sumD, sumG float32) float32 {
	return clip01(kt + lambda*(gamma*sumD-sumG))
}

// DisEpochK is k ← k + λ(γ·ΣL_D - ΣL_D). It only moves for γ != 1 and is
// not clipped, so k_t may leave [0, 1].
func DisEpochK(kt, lambda, gamma, sumD float32) float32 {
	return kt + lambda*(gamma*sumD-sumD)
}

// StepK is the per-iteration equilibrium update
// k ← clip(k + λ(γ·L_real - L_fake), 0, 1).
func StepK(kt, lambda, gamma, lossReal, lossFake float32) float32 {
	return clip01(kt + lambda*(gamma*lossReal-lossFake))
}

func clip01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}
