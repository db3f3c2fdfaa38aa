package vulkan

import (
	"github.com/vkngwrapper/core/common"
	"github.com/vkngwrapper/core/core1_0"
)

type ImageView struct{ vk core1_0.ImageView }

func (v *ImageView) Destroy() { v.vk.Destroy(nil) }

type Sampler struct{ vk core1_0.Sampler }

func (s *Sampler) Destroy() { s.vk.Destroy(nil) }

type RenderPass struct{ vk core1_0.RenderPass }

func (r *RenderPass) Destroy() { r.vk.Destroy(nil) }

type Framebuffer struct{ vk core1_0.Framebuffer }

func (f *Framebuffer) Destroy() { f.vk.Destroy(nil) }

type ShaderModule struct{ vk core1_0.ShaderModule }

func (m *ShaderModule) Destroy() { m.vk.Destroy(nil) }

type PipelineLayout struct{ vk core1_0.PipelineLayout }

func (l *PipelineLayout) Destroy() { l.vk.Destroy(nil) }

type Pipeline struct{ vk core1_0.Pipeline }

func (p *Pipeline) Destroy() { p.vk.Destroy(nil) }

type DescriptorSetLayout struct{ vk core1_0.DescriptorSetLayout }

func (l *DescriptorSetLayout) Destroy() { l.vk.Destroy(nil) }

type DescriptorPool struct{ vk core1_0.DescriptorPool }

func (p *DescriptorPool) Destroy() { p.vk.Destroy(nil) }

type DescriptorSet struct{ vk core1_0.DescriptorSet }

type CommandPool struct{ vk core1_0.CommandPool }

func (p *CommandPool) Destroy() { p.vk.Destroy(nil) }

type Semaphore struct{ vk core1_0.Semaphore }

func (s *Semaphore) Destroy() { s.vk.Destroy(nil) }

type Fence struct{ vk core1_0.Fence }

func (f *Fence) Wait() error {
	_, err := f.vk.Wait(common.NoTimeout)
	return err
}

func (f *Fence) Destroy() { f.vk.Destroy(nil) }
